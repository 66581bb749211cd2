package pipeline

import (
	"errors"
	"strings"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/util"
)

var ErrNoPriceCandidates = errors.New("no price candidates for recipe")

// singleCandidateScore is the fixed total assigned when exactly one
// candidate exists. The weighted model never runs on that path, so the
// value only needs to read as "accepted without competition" in exports.
const singleCandidateScore = 3.8

// Selector picks the best price candidate for a row using a weighted
// multi-factor model over the row's free-text client and site names.
// Client codes never participate; they are stale too often in Arkik data.
type Selector struct {
	clientWeight  float64
	siteWeight    float64
	sourceWeight  float64
	recencyWeight float64
	highAbove     float64
	medAbove      float64
	now           time.Time
}

// NewSelector builds a selector frozen at the given reference time so a
// batch scores recency consistently no matter how long validation takes.
func NewSelector(cfg config.Config, now time.Time) *Selector {
	return &Selector{
		clientWeight:  cfg.PricingClientWeight,
		siteWeight:    cfg.PricingSiteWeight,
		sourceWeight:  cfg.PricingSourceWeight,
		recencyWeight: cfg.PricingRecencyWeight,
		highAbove:     cfg.ConfidenceHighAbove,
		medAbove:      cfg.ConfidenceMedAbove,
		now:           now,
	}
}

// Select scores every candidate against the row's client and site text and
// returns the winner. Candidates must arrive in the index's pre-sorted
// order (prices before quotes, newest first); a strictly-greater
// comparison then makes that order the tie-break.
func (s *Selector) Select(candidates []internal.PriceCandidate, clientName, siteName string) (internal.PricingMatch, error) {
	if len(candidates) == 0 {
		return internal.PricingMatch{}, ErrNoPriceCandidates
	}

	if len(candidates) == 1 {
		return internal.PricingMatch{
			Candidate:  candidates[0],
			TotalScore: singleCandidateScore,
			Confidence: internal.ConfidenceHigh,
		}, nil
	}

	best := internal.PricingMatch{TotalScore: -1}
	for _, c := range candidates {
		m := internal.PricingMatch{
			Candidate:    c,
			ClientScore:  clientNameScore(clientName, c.ClientDisplayName),
			SiteScore:    siteNameScore(siteName, c.SiteName),
			SourceScore:  sourceScore(c.Source),
			RecencyScore: s.recencyScore(c.EffectiveDate),
		}
		m.TotalScore = s.clientWeight*m.ClientScore +
			s.siteWeight*m.SiteScore +
			s.sourceWeight*m.SourceScore +
			s.recencyWeight*m.RecencyScore
		if m.TotalScore > best.TotalScore {
			best = m
		}
	}

	switch {
	case best.TotalScore > s.highAbove:
		best.Confidence = internal.ConfidenceHigh
	case best.TotalScore > s.medAbove:
		best.Confidence = internal.ConfidenceMedium
	default:
		best.Confidence = internal.ConfidenceLow
	}
	return best, nil
}

// clientNameScore compares the row's client text against a candidate's
// business name: exact, containment, then word overlap over tokens longer
// than two runes.
func clientNameScore(input, name string) float64 {
	a := util.Normalize(input)
	b := util.Normalize(name)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	inputWords := util.Tokenize(a)
	nameWords := util.Tokenize(b)
	if len(inputWords) == 0 || len(nameWords) == 0 {
		return 0
	}
	matched := 0
	for _, w := range inputWords {
		for _, nw := range nameWords {
			if strings.Contains(nw, w) || strings.Contains(w, nw) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0
	}
	denom := len(inputWords)
	if len(nameWords) > denom {
		denom = len(nameWords)
	}
	return 0.6 + 0.3*(float64(matched)/float64(denom))
}

// siteNameScore is deliberately forgiving. Site text is the weaker signal,
// so a poor match yields a 0.1 floor rather than disqualifying the
// candidate outright.
func siteNameScore(input, name string) float64 {
	a := util.Normalize(input)
	b := util.Normalize(name)
	if a == "" || b == "" {
		return 0.1
	}
	if a == b {
		return 1.0
	}
	if util.StripSpaces(a) == util.StripSpaces(b) {
		return 0.95
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}
	if sim := util.LevenshteinSimilarity(a, b); sim > 0.8 {
		return sim * 0.8
	}
	return 0.1
}

func sourceScore(source internal.PriceSource) float64 {
	if source == internal.SourcePrice {
		return 1.0
	}
	return 0.8
}

func (s *Selector) recencyScore(effectiveDate time.Time) float64 {
	days := s.now.Sub(effectiveDate).Hours() / 24
	switch {
	case days < 30:
		return 1.0
	case days < 90:
		return 0.8
	case days < 365:
		return 0.6
	default:
		return 0.4
	}
}
