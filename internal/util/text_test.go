package util

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "SEDENA", want: "sedena"},
		{name: "trims", input: "  obra norte  ", want: "obra norte"},
		{name: "collapses runs", input: "fideicomiso   de\tadministracion", want: "fideicomiso de administracion"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Fideicomiso de Administracion y Pago SEDENA 80778")
	want := []string{"fideicomiso", "administracion", "pago", "sedena", "80778"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeRemisionNumber(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"P002-007789", "7789"},
		{"007789", "7789"},
		{"7789", "7789"},
		{"REM 12345", "12345"},
	}
	for _, tc := range cases {
		if got := NormalizeRemisionNumber(tc.input); got != tc.want {
			t.Fatalf("NormalizeRemisionNumber(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseCellFloat(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "7.5", want: 7.5},
		{name: "decimal comma", input: "7,5", want: 7.5},
		{name: "thousand dot", input: "1.000", want: 1000},
		{name: "thousand comma", input: "1,000", want: 1000},
		{name: "thousand space", input: "1 000", want: 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseCellFloat(tc.input)
			if !ok {
				t.Fatalf("not parsed")
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}

	if _, ok := ParseCellFloat("n/a"); ok {
		t.Fatalf("expected parse failure for non-numeric cell")
	}
}
