package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reDigits        = regexp.MustCompile(`\d`)
	reTrailingNum   = regexp.MustCompile(`(\d{3,})\s*$`)
	reThousandDots  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ParseCellFloat reads a numeric spreadsheet cell. Arkik exports mix
// thousand separators and decimal commas depending on the plant locale.
func ParseCellFloat(cell string) (float64, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(cell), " ", "")
	compact = strings.ReplaceAll(compact, " ", "")
	if compact == "" || !reDigits.MatchString(compact) {
		return 0, false
	}

	switch {
	case reThousandDots.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case reThousandComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ",") && !strings.Contains(compact, "."):
		compact = strings.ReplaceAll(compact, ",", ".")
	}

	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// ParseCellDate reads a date cell, accepting the layouts Arkik emits plus
// raw Excel serial numbers (days since 1899-12-30).
func ParseCellDate(cell string) (time.Time, bool) {
	value := strings.TrimSpace(cell)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 20000 && serial < 80000 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		days := int(serial)
		frac := serial - float64(days)
		t := epoch.AddDate(0, 0, days).Add(time.Duration(frac * 24 * float64(time.Hour)))
		return t, true
	}

	return time.Time{}, false
}

// ParseCellBool reads yes/no style cells ("Si", "B" for bombeable).
func ParseCellBool(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "si", "sí", "yes", "true", "1", "b":
		return true
	}
	return false
}

// NormalizeRemisionNumber extracts the trailing numeric portion of a
// remision reference and drops leading zeros, e.g. P002-007789 -> 7789.
func NormalizeRemisionNumber(value string) string {
	value = strings.TrimSpace(value)
	digits := ""
	if m := reTrailingNum.FindStringSubmatch(value); m != nil {
		digits = m[1]
	} else {
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		digits = b.String()
	}
	if digits == "" {
		return value
	}
	if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return digits
}
