package pipeline

import "testing"

func TestDetectDispatchReportPositive(t *testing.T) {
	res := DetectDispatchReport(
		"Remisiones Planta 2 - 20/07/2026",
		"Adjunto reporte de remisiones del día. Volumen total 185 m3.",
		"",
		[]string{"remisiones_p002.xlsx"},
	)
	if !res.IsDispatchReport {
		t.Fatalf("expected dispatch report, got %+v", res)
	}
}

func TestDetectDispatchReportNegative(t *testing.T) {
	res := DetectDispatchReport(
		"Re: reunión de mañana",
		"Confirmo la reunión a las 10am.",
		"",
		nil,
	)
	if res.IsDispatchReport {
		t.Fatalf("plain correspondence must not be a report, got %+v", res)
	}
}

func TestDetectInlineTable(t *testing.T) {
	html := `<html><body><p>Remisiones del día</p><table><tr><th>Remisión</th><th>Volumen</th></tr><tr><td>7789</td><td>7.5</td></tr></table></body></html>`
	res := DetectDispatchReport("Despacho", "", html, nil)
	if !res.IsDispatchReport {
		t.Fatalf("inline remision table must be detected, got %+v", res)
	}
}
