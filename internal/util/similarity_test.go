package util

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"6-250-2-b-28-18-d-2-000", "6-250-2-b-28-18-d-2-00o", 1},
	}

	for _, tc := range cases {
		if got := LevenshteinDistance(tc.a, tc.b); got != tc.want {
			t.Fatalf("LevenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	if got := LevenshteinSimilarity("", ""); got != 1.0 {
		t.Fatalf("empty strings: got %v want 1.0", got)
	}
	if got := LevenshteinSimilarity("abc", "abc"); got != 1.0 {
		t.Fatalf("equal strings: got %v want 1.0", got)
	}
	got := LevenshteinSimilarity("kitten", "sitting")
	want := float64(7-3) / 7
	if got != want {
		t.Fatalf("kitten/sitting: got %v want %v", got, want)
	}
}
