package pipeline

import (
	"testing"

	"arkik/internal"
)

func sampleGrid() [][]string {
	return [][]string{
		{"Reporte de remisiones"},
		{"Planta", "P002"},
		{"", "", "", "", "", "", "", "", "", "", "", "", "CEM-1", "", "ARENA", ""},
		{"Orden", "Remisión", "Estatus", "Volumen", "#Cliente", "Cliente", "Obra", "Punto Entrega", "Prod Comercial", "Prod Técnico", "Descripción", "Fecha", "Teórica", "Real", "Teórica", "Real"},
		{"ORD-1", "P002-007789", "Terminado", "7.5", "C-100", "CONSTRUCTORA ABC", "TORRE NORTE", "ACCESO 2", "FC250", "250-14", "250-14-28-B-2-D", "2026-07-20", "350", "348.5", "900", "905"},
		{"ORD-2", "P002-007790", "Terminado", "0", "C-100", "CONSTRUCTORA ABC", "TORRE NORTE", "", "FC250", "250-14", "250-14-28-B-2-D", "2026-07-20", "350", "349", "900", "902"},
		{"ORD-3", "", "Terminado", "8", "C-200", "OTRO", "OBRA", "", "", "", "", "2026-07-20", "", "", "", ""},
	}
}

func TestParseGridReadsRows(t *testing.T) {
	result := parseGrid(sampleGrid())

	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 parsed row, got %d: %+v", len(result.Rows), result.Rows)
	}
	row := result.Rows[0]
	if row.RemisionNumber != "7789" {
		t.Fatalf("remision number not normalized: %q", row.RemisionNumber)
	}
	if row.ClientCode != "C-100" || row.ClientName != "CONSTRUCTORA ABC" {
		t.Fatalf("client columns mixed up: %+v", row)
	}
	if row.ProductCode != "250-14-28-B-2-D" || row.ProductCodeFallback != "250-14" {
		t.Fatalf("product columns wrong: %+v", row)
	}
	if row.Volume != 7.5 {
		t.Fatalf("volume wrong: %v", row.Volume)
	}
	if row.Date.Year() != 2026 || int(row.Date.Month()) != 7 || row.Date.Day() != 20 {
		t.Fatalf("date wrong: %v", row.Date)
	}
}

func TestParseGridMaterialBlocks(t *testing.T) {
	result := parseGrid(sampleGrid())
	row := result.Rows[0]

	if row.MaterialsTheoretical["CEM-1"] != 350 || row.MaterialsActual["CEM-1"] != 348.5 {
		t.Fatalf("cement block wrong: %+v %+v", row.MaterialsTheoretical, row.MaterialsActual)
	}
	if row.MaterialsTheoretical["ARENA"] != 900 || row.MaterialsActual["ARENA"] != 905 {
		t.Fatalf("sand block wrong: %+v %+v", row.MaterialsTheoretical, row.MaterialsActual)
	}
}

func TestParseGridRejectsZeroVolume(t *testing.T) {
	result := parseGrid(sampleGrid())

	foundVolumeError := false
	for _, e := range result.Errors {
		if e.Kind == internal.ErrInvalidVolume && e.RowNumber == 6 {
			foundVolumeError = true
			if e.Recoverable {
				t.Fatal("zero volume must be unrecoverable")
			}
		}
	}
	if !foundVolumeError {
		t.Fatalf("expected an invalid-volume error: %+v", result.Errors)
	}
}

func TestParseGridSkipsRowsWithoutRemision(t *testing.T) {
	// The third data row has no remision cell and is ignored entirely.
	result := parseGrid(sampleGrid())
	if result.TotalRows != 2 {
		t.Fatalf("expected 2 counted rows, got %d", result.TotalRows)
	}
}
