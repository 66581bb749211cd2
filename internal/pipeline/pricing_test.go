package pipeline

import (
	"math"
	"testing"
	"time"

	"arkik/internal"
	"arkik/internal/config"
)

func testSelector(now time.Time) *Selector {
	cfg, _ := config.Load()
	return NewSelector(cfg, now)
}

func TestSelectNoCandidates(t *testing.T) {
	s := testSelector(time.Now())
	if _, err := s.Select(nil, "CONSTRUCTORA ABC", "TORRE NORTE"); err != ErrNoPriceCandidates {
		t.Fatalf("expected ErrNoPriceCandidates, got %v", err)
	}
}

func TestSelectSingleCandidateFastPath(t *testing.T) {
	s := testSelector(time.Now())
	candidates := []internal.PriceCandidate{{
		RecipeID: "r1",
		Amount:   1850,
		Source:   internal.SourceQuote,
	}}

	// Comparison text is absent on purpose: the fast path must not score.
	match, err := s.Select(candidates, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if match.TotalScore != 3.8 {
		t.Fatalf("single candidate must carry the fixed score, got %v", match.TotalScore)
	}
	if match.Confidence != internal.ConfidenceHigh {
		t.Fatalf("single candidate must be high confidence, got %s", match.Confidence)
	}
	if match.ClientScore != 0 || match.SiteScore != 0 {
		t.Fatalf("fast path must not run component scoring: %+v", match)
	}
}

func TestSelectPrefersExactClientAndSite(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := testSelector(now)
	candidates := []internal.PriceCandidate{
		{
			PriceID:           "p-other",
			ClientDisplayName: "INMOBILIARIA DEL VALLE SA DE CV",
			SiteName:          "PLAZA COMERCIAL SUR",
			Amount:            1700,
			Source:            internal.SourcePrice,
			EffectiveDate:     now.AddDate(0, 0, -10),
		},
		{
			PriceID:           "p-exact",
			ClientDisplayName: "CONSTRUCTORA ABC SA DE CV",
			SiteName:          "TORRE NORTE",
			Amount:            1850,
			Source:            internal.SourcePrice,
			EffectiveDate:     now.AddDate(0, 0, -10),
		},
	}

	match, err := s.Select(candidates, "CONSTRUCTORA ABC SA DE CV", "TORRE NORTE")
	if err != nil {
		t.Fatal(err)
	}
	if match.Candidate.PriceID != "p-exact" {
		t.Fatalf("expected exact client/site candidate, got %+v", match.Candidate)
	}
	if match.ClientScore != 1.0 || match.SiteScore != 1.0 {
		t.Fatalf("unexpected component scores: %+v", match)
	}
	if match.Confidence != internal.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", match.Confidence)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := testSelector(now)
	candidates := []internal.PriceCandidate{
		{PriceID: "p1", ClientDisplayName: "CLIENTE UNO", SiteName: "OBRA A", Source: internal.SourcePrice, EffectiveDate: now.AddDate(0, 0, -40)},
		{QuoteID: "q1", ClientDisplayName: "CLIENTE DOS", SiteName: "OBRA B", Source: internal.SourceQuote, EffectiveDate: now.AddDate(0, 0, -5)},
		{PriceID: "p2", ClientDisplayName: "CLIENTE TRES", SiteName: "OBRA C", Source: internal.SourcePrice, EffectiveDate: now.AddDate(0, -8, 0)},
	}

	first, err := s.Select(candidates, "cliente dos", "obra b")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Select(candidates, "cliente dos", "obra b")
	if err != nil {
		t.Fatal(err)
	}
	if first.Candidate != second.Candidate || first.TotalScore != second.TotalScore {
		t.Fatalf("selection is not deterministic: %+v vs %+v", first, second)
	}
}

func TestSelectTieBreakUsesPresortedOrder(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := testSelector(now)
	// Identical comparison text and dates, so every component ties. The
	// first candidate in index order must win.
	candidates := []internal.PriceCandidate{
		{PriceID: "p-first", ClientDisplayName: "CLIENTE", SiteName: "OBRA", Source: internal.SourcePrice, EffectiveDate: now.AddDate(0, 0, -3)},
		{PriceID: "p-second", ClientDisplayName: "CLIENTE", SiteName: "OBRA", Source: internal.SourcePrice, EffectiveDate: now.AddDate(0, 0, -3)},
	}

	match, err := s.Select(candidates, "cliente", "obra")
	if err != nil {
		t.Fatal(err)
	}
	if match.Candidate.PriceID != "p-first" {
		t.Fatalf("tie must break on list order, got %+v", match.Candidate)
	}
}

func TestClientNameScore(t *testing.T) {
	cases := []struct {
		input, name string
		want        float64
	}{
		{"CONSTRUCTORA ABC", "constructora abc", 1.0},
		{"CONSTRUCTORA ABC", "CONSTRUCTORA ABC SA DE CV", 0.9},
		{"", "CONSTRUCTORA ABC", 0},
		{"ZZZ QQQ", "CONSTRUCTORA ABC", 0},
	}
	for _, tc := range cases {
		if got := clientNameScore(tc.input, tc.name); got != tc.want {
			t.Fatalf("clientNameScore(%q, %q) = %v, want %v", tc.input, tc.name, got, tc.want)
		}
	}
}

func TestClientNameScoreWordOverlap(t *testing.T) {
	// Two of three significant input words overlap the three significant
	// name words ("SA" is too short to count): 0.6 + 0.3*(2/3).
	got := clientNameScore("CONSTRUCTORA HERMANOS XYZ", "CONSTRUCTORA HERMANOS LOPEZ SA")
	want := 0.6 + 0.3*(float64(2)/float64(3))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("word overlap score = %v, want %v", got, want)
	}
}

func TestSiteNameScore(t *testing.T) {
	cases := []struct {
		input, name string
		want        float64
	}{
		{"TORRE NORTE", "torre norte", 1.0},
		{"TORRENORTE", "TORRE NORTE", 0.95},
		{"TORRE", "TORRE NORTE", 0.9},
		{"", "TORRE NORTE", 0.1},
		{"completely different", "TORRE NORTE", 0.1},
	}
	for _, tc := range cases {
		if got := siteNameScore(tc.input, tc.name); got != tc.want {
			t.Fatalf("siteNameScore(%q, %q) = %v, want %v", tc.input, tc.name, got, tc.want)
		}
	}
}

func TestRecencyScoreSteps(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := testSelector(now)
	cases := []struct {
		daysAgo int
		want    float64
	}{
		{5, 1.0},
		{45, 0.8},
		{200, 0.6},
		{400, 0.4},
	}
	for _, tc := range cases {
		got := s.recencyScore(now.AddDate(0, 0, -tc.daysAgo))
		if got != tc.want {
			t.Fatalf("recencyScore(%d days ago) = %v, want %v", tc.daysAgo, got, tc.want)
		}
	}
}
