package pipeline

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"arkik/internal"
	"arkik/internal/util"
)

// ExtractedMail is everything pulled out of one raw message: delivery
// rows from attachments and inline tables, plus the headers the detector
// and audit trail need.
type ExtractedMail struct {
	Rows            []internal.RawRow
	Errors          []internal.ValidationError
	Subject         string
	Text            string
	HTML            string
	AttachmentNames []string
}

// ExtractRowsFromEmailRaw parses a stored MIME message and extracts
// delivery rows from every source it carries: xlsx report attachments,
// inline HTML remision tables, and PDF delivery notes. A malformed
// attachment is skipped, not fatal; plants routinely send partial mails.
func ExtractRowsFromEmailRaw(raw []byte) (ExtractedMail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return ExtractedMail{}, err
	}

	out := ExtractedMail{
		Subject: env.GetHeader("Subject"),
		Text:    env.Text,
		HTML:    env.HTML,
	}

	if env.HTML != "" {
		out.Rows = append(out.Rows, parseHTMLRemisionTables(env.HTML)...)
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.AttachmentNames = append(out.AttachmentNames, filename)
		lower := strings.ToLower(filename)

		switch {
		case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
			parsed, err := ParseArkikReport(att.Content)
			if err != nil {
				continue
			}
			out.Rows = append(out.Rows, parsed.Rows...)
			out.Errors = append(out.Errors, parsed.Errors...)
		case strings.HasSuffix(lower, ".csv"):
			parsed, err := ParseArkikReportCSV(att.Content)
			if err != nil {
				continue
			}
			out.Rows = append(out.Rows, parsed.Rows...)
			out.Errors = append(out.Errors, parsed.Errors...)
		case strings.HasSuffix(lower, ".pdf"):
			out.Rows = append(out.Rows, parsePDFDeliveryNotes(att.Content)...)
		}
	}

	out.Rows = dedupeRows(out.Rows)
	for i := range out.Rows {
		if out.Rows[i].RowNumber == 0 {
			out.Rows[i].RowNumber = i + 1
		}
	}
	return out, nil
}

var htmlHeaderProbes = map[string][]string{
	"remision": {"remisión", "remision", "folio"},
	"volumen":  {"volumen", "vol", "m3", "m³"},
	"cliente":  {"cliente"},
	"obra":     {"obra", "sitio"},
	"producto": {"descrip", "producto", "receta"},
	"fecha":    {"fecha"},
}

// parseHTMLRemisionTables reads remision tables some plants paste into
// the mail body instead of attaching the report. Only tables whose header
// row mentions a remision column are considered.
func parseHTMLRemisionTables(html string) []internal.RawRow {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.RawRow{}
	rowNumber := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		trs := table.Find("tr")
		if trs.Length() < 2 {
			return
		}

		headers := []string{}
		trs.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, util.Normalize(cell.Text()))
		})

		columns := map[string]int{}
		for name, probes := range htmlHeaderProbes {
			for i, h := range headers {
				matched := false
				for _, probe := range probes {
					if strings.Contains(h, probe) {
						matched = true
						break
					}
				}
				if matched {
					columns[name] = i
					break
				}
			}
		}
		remisionIdx, ok := columns["remision"]
		if !ok {
			return
		}

		trs.Slice(1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			number := util.NormalizeRemisionNumber(cellAt(cells, remisionIdx))
			if number == "" {
				return
			}

			rowNumber++
			row := internal.RawRow{
				RowNumber:      rowNumber,
				Source:         internal.SourceHTMLTable,
				RemisionNumber: number,
				ClientName:     cellAt(cells, indexOrMinus(columns, "cliente")),
				SiteName:       cellAt(cells, indexOrMinus(columns, "obra")),
				ProductCode:    cellAt(cells, indexOrMinus(columns, "producto")),
			}
			if v, ok := util.ParseCellFloat(cellAt(cells, indexOrMinus(columns, "volumen"))); ok {
				row.Volume = v
			}
			if d, ok := util.ParseCellDate(cellAt(cells, indexOrMinus(columns, "fecha"))); ok {
				row.Date = d
			}
			out = append(out, row)
		})
	})
	return out
}

var (
	rePDFRemision = regexp.MustCompile(`(?i)remisi[oó]n\s*[:#]?\s*([A-Z0-9-]*\d{3,})`)
	rePDFVolume   = regexp.MustCompile(`(?i)volumen\s*[:#]?\s*([\d.,]+)`)
	rePDFClient   = regexp.MustCompile(`(?i)cliente\s*[:#]?\s*(.+?)(?:\s{2,}|$)`)
	rePDFSite     = regexp.MustCompile(`(?i)obra\s*[:#]?\s*(.+?)(?:\s{2,}|$)`)
	rePDFProduct  = regexp.MustCompile(`(?i)(?:producto|descripci[oó]n)\s*[:#]?\s*(.+?)(?:\s{2,}|$)`)
)

// parsePDFDeliveryNotes handles scanned delivery notes, one remision per
// page. It only trusts labelled fields; free text on the note is noise.
func parsePDFDeliveryNotes(content []byte) []internal.RawRow {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}

	out := []internal.RawRow{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}

		m := rePDFRemision.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		row := internal.RawRow{
			RowNumber:      i,
			Source:         internal.SourcePDF,
			RemisionNumber: util.NormalizeRemisionNumber(m[1]),
		}
		if vm := rePDFVolume.FindStringSubmatch(text); vm != nil {
			if v, ok := util.ParseCellFloat(vm[1]); ok {
				row.Volume = v
			}
		}
		if cm := rePDFClient.FindStringSubmatch(text); cm != nil {
			row.ClientName = strings.TrimSpace(cm[1])
		}
		if sm := rePDFSite.FindStringSubmatch(text); sm != nil {
			row.SiteName = strings.TrimSpace(sm[1])
		}
		if pm := rePDFProduct.FindStringSubmatch(text); pm != nil {
			row.ProductCode = strings.TrimSpace(pm[1])
		}
		out = append(out, row)
	}
	return out
}

// dedupeRows drops repeats of the same remision from the same source,
// which happens when a plant both attaches the report and pastes the
// table inline.
func dedupeRows(rows []internal.RawRow) []internal.RawRow {
	seen := map[string]struct{}{}
	out := make([]internal.RawRow, 0, len(rows))
	for _, row := range rows {
		key := string(row.Source) + "|" + util.NormalizeRemisionNumber(row.RemisionNumber)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

func indexOrMinus(columns map[string]int, name string) int {
	if idx, ok := columns[name]; ok {
		return idx
	}
	return -1
}
