package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"arkik/internal"
	"arkik/internal/util"
)

// Arkik ships its dispatch report as a wide xlsx: a fixed set of labelled
// columns followed by repeating material blocks, where the material code
// sits in the row above the measure headers (Teorica/Real/Retrabajo/Manual).
// Column positions drift between plants, so everything is located by
// header regex, never by index.
var stableHeaders = map[string]*regexp.Regexp{
	"orden":                regexp.MustCompile(`(?i)\borden\b`),
	"remision":             regexp.MustCompile(`(?i)remisi[oó]n`),
	"estatus":              regexp.MustCompile(`(?i)estatus`),
	"volumen":              regexp.MustCompile(`(?i)volumen`),
	"cliente_codigo":       regexp.MustCompile(`(?i)^\s*#\s*cliente\b`),
	"cliente_nombre":       regexp.MustCompile(`(?i)^(?:\s*)cliente\b`),
	"rfc":                  regexp.MustCompile(`(?i)\brfc\b`),
	"obra":                 regexp.MustCompile(`(?i)\bobra\b`),
	"punto_entrega":        regexp.MustCompile(`(?i)punto.*entrega`),
	"prod_comercial":       regexp.MustCompile(`(?i)prod.*comercial`),
	"prod_tecnico":         regexp.MustCompile(`(?i)prod.*t[eé]cnico`),
	"product_description":  regexp.MustCompile(`(?i)descrip`),
	"comentarios_internos": regexp.MustCompile(`(?i)comentarios.*internos`),
	"comentarios_externos": regexp.MustCompile(`(?i)comentarios.*externos`),
	"elementos":            regexp.MustCompile(`(?i)elementos`),
	"camion":               regexp.MustCompile(`(?i)cam[ií]on`),
	"placas":               regexp.MustCompile(`(?i)placas`),
	"chofer":               regexp.MustCompile(`(?i)chofer`),
	"bombeable":            regexp.MustCompile(`(?i)(b/nb|bombeable)`),
	"fecha":                regexp.MustCompile(`(?i)\bfecha\b`),
	"hora_carga":           regexp.MustCompile(`(?i)hora.*carga`),
}

var (
	reTeorica      = regexp.MustCompile(`(?i)te[oó]rica|^teo$`)
	reReal         = regexp.MustCompile(`(?i)real`)
	reRetrabajo    = regexp.MustCompile(`(?i)retrabajo|^ret$`)
	reManual       = regexp.MustCompile(`(?i)manual|^man$`)
	reMaterialCode = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9\s-]*$`)
)

type materialBlock struct {
	code      string
	teorica   int
	real      int
	retrabajo int
	manual    int
}

// ParseResult is the structural outcome of reading one report file. Rows
// with structural errors are kept out of Rows but their errors are
// reported so the operator sees what was dropped.
type ParseResult struct {
	Rows      []internal.RawRow
	Errors    []internal.ValidationError
	TotalRows int
}

// ParseArkikReport reads a dispatch report from xlsx bytes. Only the
// first sheet carries data; Arkik appends summary sheets after it.
func ParseArkikReport(content []byte) (ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ParseResult{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParseResult{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ParseResult{}, err
	}
	return parseGrid(rows), nil
}

// ParseArkikReportCSV reads the same report exported as CSV. Some plants
// re-save the workbook before mailing it.
func ParseArkikReportCSV(content []byte) (ParseResult, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	grid := [][]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ParseResult{}, err
		}
		grid = append(grid, record)
	}
	return parseGrid(grid), nil
}

func parseGrid(grid [][]string) ParseResult {
	result := ParseResult{}
	if len(grid) == 0 {
		return result
	}

	headerIdx := findHeaderRow(grid)
	header := trimCells(grid[headerIdx])
	var preHeader []string
	if headerIdx > 0 {
		preHeader = trimCells(grid[headerIdx-1])
	}
	blocks := detectMaterialBlocks(header, preHeader)
	columns := resolveColumns(header)

	remisionIdx, hasRemision := columns["remision"]
	if !hasRemision {
		return result
	}

	for i := headerIdx + 1; i < len(grid); i++ {
		cells := grid[i]
		if cellAt(cells, remisionIdx) == "" {
			continue
		}
		rowNumber := i + 1
		result.TotalRows++

		row, errs := parseReportRow(cells, rowNumber, columns, blocks)
		result.Errors = append(result.Errors, errs...)
		if hasUnrecoverable(errs) {
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

func parseReportRow(cells []string, rowNumber int, columns map[string]int, blocks []materialBlock) (internal.RawRow, []internal.ValidationError) {
	get := func(name string) string {
		idx, ok := columns[name]
		if !ok {
			return ""
		}
		return cellAt(cells, idx)
	}

	row := internal.RawRow{
		RowNumber:           rowNumber,
		Source:              internal.SourceXLSX,
		OrderRef:            get("orden"),
		RemisionNumber:      util.NormalizeRemisionNumber(get("remision")),
		DispatchStatus:      get("estatus"),
		ClientCode:          get("cliente_codigo"),
		ClientName:          get("cliente_nombre"),
		RFC:                 get("rfc"),
		SiteName:            get("obra"),
		DeliveryPoint:       get("punto_entrega"),
		CommercialCode:      get("prod_comercial"),
		ProductCode:         get("product_description"),
		ProductCodeFallback: get("prod_tecnico"),
		InternalComments:    get("comentarios_internos"),
		ExternalComments:    get("comentarios_externos"),
		Elements:            get("elementos"),
		Truck:               get("camion"),
		Plates:              get("placas"),
		Driver:              get("chofer"),
		Pumpable:            util.ParseCellBool(get("bombeable")),
	}

	var errs []internal.ValidationError
	fail := func(kind internal.ErrorKind, field, value, message string, recoverable bool) {
		errs = append(errs, internal.ValidationError{
			RowNumber:   rowNumber,
			Kind:        kind,
			FieldName:   field,
			FieldValue:  value,
			Message:     message,
			Recoverable: recoverable,
		})
	}

	if volume, ok := util.ParseCellFloat(get("volumen")); ok {
		row.Volume = volume
	}
	if row.Volume <= 0 {
		fail(internal.ErrInvalidVolume, "volumen", get("volumen"), "volume must be greater than zero", false)
	}

	if date, ok := util.ParseCellDate(get("fecha")); ok {
		row.Date = date
	} else {
		fail(internal.ErrInvalidDate, "fecha", get("fecha"), "unreadable delivery date", false)
	}
	if loadTime, ok := util.ParseCellDate(get("hora_carga")); ok {
		row.LoadTime = loadTime
	}

	for _, required := range []struct{ field, value string }{
		{"remision", row.RemisionNumber},
		{"cliente_nombre", row.ClientName},
		{"obra", row.SiteName},
	} {
		if strings.TrimSpace(required.value) == "" {
			fail(internal.ErrMissingRequiredField, required.field, required.value,
				fmt.Sprintf("required field %s is empty", required.field), false)
		}
	}
	if strings.TrimSpace(row.ProductCode) == "" && strings.TrimSpace(row.ProductCodeFallback) == "" {
		fail(internal.ErrRecipeNotFound, "product_description", "", "product description is missing", true)
	}

	row.MaterialsTheoretical = map[string]float64{}
	row.MaterialsActual = map[string]float64{}
	row.MaterialsRework = map[string]float64{}
	row.MaterialsManual = map[string]float64{}
	for _, block := range blocks {
		teorica := materialValue(cells, block.teorica)
		real := materialValue(cells, block.real)
		retrabajo := materialValue(cells, block.retrabajo)
		manual := materialValue(cells, block.manual)
		if teorica <= 0 && real <= 0 && retrabajo <= 0 && manual <= 0 {
			continue
		}
		row.MaterialsTheoretical[block.code] = teorica
		row.MaterialsActual[block.code] = real
		if retrabajo > 0 {
			row.MaterialsRework[block.code] = retrabajo
		}
		if manual > 0 {
			row.MaterialsManual[block.code] = manual
		}
	}

	return row, errs
}

// findHeaderRow scans the first rows and picks the one matching the most
// stable headers. Arkik puts plant metadata above the real header.
func findHeaderRow(grid [][]string) int {
	maxScan := len(grid)
	if maxScan > 10 {
		maxScan = 10
	}
	bestIdx, bestScore := 0, -1
	for i := 0; i < maxScan; i++ {
		score := 0
		for _, re := range stableHeaders {
			for _, cell := range grid[i] {
				if re.MatchString(cell) {
					score++
					break
				}
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

// resolveColumns maps logical names to column indices. The #Cliente code
// column must win before the Cliente name probe runs, otherwise the name
// regex swallows both.
func resolveColumns(header []string) map[string]int {
	columns := map[string]int{}
	if idx := findColumn(header, stableHeaders["cliente_codigo"], -1); idx >= 0 {
		columns["cliente_codigo"] = idx
	}
	for name, re := range stableHeaders {
		if name == "cliente_codigo" {
			continue
		}
		skip := -1
		if name == "cliente_nombre" {
			if codeIdx, ok := columns["cliente_codigo"]; ok {
				skip = codeIdx
			}
		}
		if idx := findColumn(header, re, skip); idx >= 0 {
			columns[name] = idx
		}
	}
	return columns
}

func findColumn(header []string, re *regexp.Regexp, skip int) int {
	for i, cell := range header {
		if i == skip {
			continue
		}
		if re.MatchString(cell) {
			return i
		}
	}
	return -1
}

// detectMaterialBlocks pairs material codes from the pre-header row with
// the measure columns beneath them. A block needs at least Teorica and
// Real; Retrabajo and Manual are optional.
func detectMaterialBlocks(header, preHeader []string) []materialBlock {
	if len(preHeader) == 0 {
		return nil
	}

	type candidate struct {
		code string
		idx  int
	}
	candidates := []candidate{}
	for i, cell := range preHeader {
		cell = strings.TrimSpace(cell)
		if cell == "" || len(cell) > 10 {
			continue
		}
		if strings.Trim(cell, "- ") == "" {
			continue
		}
		if !reMaterialCode.MatchString(cell) {
			continue
		}
		candidates = append(candidates, candidate{code: strings.ToUpper(cell), idx: i})
	}

	blocks := []materialBlock{}
	for i, c := range candidates {
		end := len(header)
		if i+1 < len(candidates) {
			end = candidates[i+1].idx
		}

		block := materialBlock{code: c.code, teorica: -1, real: -1, retrabajo: -1, manual: -1}
		for col := c.idx; col < end && col < len(header); col++ {
			cell := strings.TrimSpace(header[col])
			if cell == "" {
				continue
			}
			switch {
			case reTeorica.MatchString(cell):
				block.teorica = col
			case reRetrabajo.MatchString(cell):
				block.retrabajo = col
			case reManual.MatchString(cell):
				block.manual = col
			case reReal.MatchString(cell):
				block.real = col
			}
		}
		if block.teorica >= 0 && block.real >= 0 {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func materialValue(cells []string, idx int) float64 {
	if idx < 0 {
		return 0
	}
	v, ok := util.ParseCellFloat(cellAt(cells, idx))
	if !ok {
		return 0
	}
	return v
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func hasUnrecoverable(errs []internal.ValidationError) bool {
	for _, e := range errs {
		if !e.Recoverable {
			return true
		}
	}
	return false
}
