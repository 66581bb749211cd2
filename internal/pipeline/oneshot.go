package pipeline

import (
	"fmt"
	"os"
	"strings"
)

// ExtractRowsFromInput reads delivery rows straight from a local file,
// the path operators use when a plant hands over the report on a USB
// stick instead of mailing it.
func ExtractRowsFromInput(inputType, input string) (ParseResult, error) {
	switch inputType {
	case "xlsx":
		blob, err := os.ReadFile(input)
		if err != nil {
			return ParseResult{}, err
		}
		return ParseArkikReport(blob)
	case "csv":
		blob, err := os.ReadFile(input)
		if err != nil {
			return ParseResult{}, err
		}
		return ParseArkikReportCSV(blob)
	case "eml":
		blob, err := os.ReadFile(input)
		if err != nil {
			return ParseResult{}, err
		}
		extracted, err := ExtractRowsFromEmailRaw(blob)
		if err != nil {
			return ParseResult{}, err
		}
		return ParseResult{Rows: extracted.Rows, Errors: extracted.Errors, TotalRows: len(extracted.Rows)}, nil
	default:
		return ParseResult{}, fmt.Errorf("unsupported input type: %s", inputType)
	}
}

// GuessInputType infers the input type from the file extension.
func GuessInputType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
		return "xlsx"
	case strings.HasSuffix(lower, ".csv"):
		return "csv"
	case strings.HasSuffix(lower, ".eml"):
		return "eml"
	}
	return ""
}
