package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"arkik/internal"
)

// ExportRowsToXLSX writes the validated batch to a review workbook the
// plant staff open before approving the import.
func ExportRowsToXLSX(rows []internal.ValidatedRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"row_number", "source", "remision", "estatus_arkik", "fecha", "volumen",
		"cliente_codigo", "cliente_nombre", "obra", "punto_entrega",
		"producto", "producto_alterno",
		"recipe_id", "client_id", "precio_unitario", "origen_precio",
		"confianza", "score_cliente", "score_obra", "score_total",
		"status", "errores",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.RowNumber)
		set(2, string(row.Source))
		set(3, row.RemisionNumber)
		set(4, row.DispatchStatus)
		if !row.Date.IsZero() {
			set(5, row.Date.Format("2006-01-02"))
		}
		set(6, row.Volume)
		set(7, row.ClientCode)
		set(8, row.ClientName)
		set(9, row.SiteName)
		set(10, row.DeliveryPoint)
		set(11, row.ProductCode)
		set(12, row.ProductCodeFallback)
		set(13, row.RecipeID)
		set(14, row.ClientID)
		set(15, row.UnitPrice)
		set(16, string(row.PriceSource))
		set(17, string(row.Confidence))
		set(18, row.ClientScore)
		set(19, row.SiteScore)
		set(20, row.TotalScore)
		set(21, string(row.Status))
		set(22, joinErrors(row.Errors))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func joinErrors(errs []internal.ValidationError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, string(e.Kind)+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}
