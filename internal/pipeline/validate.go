package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/refdata"
	"arkik/internal/util"
)

// cachedDecision is one resolved (code, client, site) combination. Rows
// in the same report repeat the combination constantly, so resolution and
// pricing run once per distinct key.
type cachedDecision struct {
	recipeID          string
	clientID          string
	unitPrice         float64
	priceSource       internal.PriceSource
	suggestedClientID string
	suggestedSiteName string
	confidence        internal.Confidence
	clientScore       float64
	siteScore         float64
	totalScore        float64
}

// BatchValidator drives per-row validation against a built reference
// index. It owns the batch-local cache and stats; build a fresh one per
// batch and discard it afterwards. Not safe for concurrent row feeds.
type BatchValidator struct {
	idx      *refdata.Index
	selector *Selector
	cache    map[string]cachedDecision
	stats    internal.BatchStats
}

func NewBatchValidator(idx *refdata.Index, cfg config.Config, now time.Time) *BatchValidator {
	return &BatchValidator{
		idx:      idx,
		selector: NewSelector(cfg, now),
		cache:    map[string]cachedDecision{},
	}
}

// Run validates every row and returns the batch result. Input rows are
// never mutated; each comes back as a ValidatedRow with its own error
// list. One bad row never aborts the rest. Cancelling the context stops
// the loop at the next row boundary; rows validated so far are returned
// and remain usable.
func (v *BatchValidator) Run(ctx context.Context, rows []internal.RawRow) internal.BatchResult {
	result := internal.BatchResult{
		Validated: make([]internal.ValidatedRow, 0, len(rows)),
	}

	for _, raw := range rows {
		if ctx.Err() != nil {
			break
		}
		validated := v.validateRow(raw)
		result.Validated = append(result.Validated, validated)
		result.Errors = append(result.Errors, validated.Errors...)
		v.stats.ProcessedRows++
	}

	result.Stats = v.stats
	return result
}

func (v *BatchValidator) validateRow(raw internal.RawRow) internal.ValidatedRow {
	row := internal.ValidatedRow{RawRow: raw, Status: internal.StatusPending}

	key := cacheKey(raw)
	if hit, ok := v.cache[key]; ok {
		v.stats.CacheHits++
		applyDecision(&row, hit)
	} else {
		v.stats.CacheMisses++

		resolution, found := ResolveRecipe(v.idx, raw.ProductCode, raw.ProductCodeFallback)
		if !found {
			row.Errors = append(row.Errors, internal.ValidationError{
				RowNumber:   raw.RowNumber,
				Kind:        internal.ErrRecipeNotFound,
				FieldName:   "product_code",
				FieldValue:  raw.ProductCode,
				Message:     fmt.Sprintf("no recipe matches code %q (fallback %q)", raw.ProductCode, raw.ProductCodeFallback),
				Recoverable: true,
			})
			row.Status = internal.StatusError
			return row
		}

		match, err := v.selector.Select(v.idx.PricingByRecipeID[resolution.Recipe.ID], raw.ClientName, raw.SiteName)
		if err != nil {
			row.RecipeID = resolution.Recipe.ID
			row.Errors = append(row.Errors, internal.ValidationError{
				RowNumber:   raw.RowNumber,
				Kind:        internal.ErrRecipeNoPrice,
				FieldName:   "product_code",
				FieldValue:  raw.ProductCode,
				Message:     fmt.Sprintf("recipe %s has no active price or approved quote", resolution.Recipe.ShortCode),
				Recoverable: true,
			})
			row.Status = internal.StatusError
			return row
		}

		v.countMatch(resolution, match, len(v.idx.PricingByRecipeID[resolution.Recipe.ID]))

		decision := cachedDecision{
			recipeID:          resolution.Recipe.ID,
			clientID:          match.Candidate.ClientID,
			unitPrice:         match.Candidate.Amount,
			priceSource:       match.Candidate.Source,
			suggestedClientID: match.Candidate.ClientID,
			suggestedSiteName: match.Candidate.SiteName,
			confidence:        match.Confidence,
			clientScore:       match.ClientScore,
			siteScore:         match.SiteScore,
			totalScore:        match.TotalScore,
		}
		v.cache[key] = decision
		applyDecision(&row, decision)
	}

	// Material and duplicate checks run on every path, cache hits
	// included. A cached pricing decision says nothing about whether
	// this particular row collides with a stored remision.
	v.checkMaterials(&row)
	v.checkDuplicate(&row)

	finalizeStatus(&row)
	return row
}

// cacheKey deliberately excludes the client code field. Codes are often
// wrong or stale in Arkik exports; free-text names are what actually
// repeats reliably across rows.
func cacheKey(raw internal.RawRow) string {
	code := raw.ProductCode
	if util.Normalize(code) == "" {
		code = raw.ProductCodeFallback
	}
	return util.Normalize(code) + "::" + util.Normalize(raw.ClientName) + "::" + util.Normalize(raw.SiteName)
}

func applyDecision(row *internal.ValidatedRow, d cachedDecision) {
	row.RecipeID = d.recipeID
	row.ClientID = d.clientID
	row.UnitPrice = d.unitPrice
	row.PriceSource = d.priceSource
	row.SuggestedClientID = d.suggestedClientID
	row.SuggestedSiteName = d.suggestedSiteName
	row.Confidence = d.confidence
	row.ClientScore = d.clientScore
	row.SiteScore = d.siteScore
	row.TotalScore = d.totalScore
}

func (v *BatchValidator) countMatch(resolution Resolution, match internal.PricingMatch, candidateCount int) {
	if resolution.Fuzzy {
		v.stats.FuzzyMatches.Recipes++
	}

	if candidateCount == 1 {
		v.stats.PricingMatches.Direct++
	} else {
		goodClient := match.ClientScore > 0.7
		goodSite := match.SiteScore > 0.7
		switch {
		case goodClient && goodSite:
			v.stats.PricingMatches.SiteFiltered++
		case goodClient:
			v.stats.PricingMatches.ClientFiltered++
		default:
			v.stats.PricingMatches.Fallback++
		}
		if match.ClientScore > 0 && match.ClientScore < 1 {
			v.stats.FuzzyMatches.Clients++
		}
		if match.SiteScore > 0.1 && match.SiteScore < 1 {
			v.stats.FuzzyMatches.Sites++
		}
	}

	if match.Candidate.Source == internal.SourcePrice {
		v.stats.PricingMatches.FromPrices++
	} else {
		v.stats.PricingMatches.FromQuotes++
	}
}

func (v *BatchValidator) checkMaterials(row *internal.ValidatedRow) {
	codes := map[string]struct{}{}
	for code := range row.MaterialsTheoretical {
		codes[code] = struct{}{}
	}
	for code := range row.MaterialsActual {
		codes[code] = struct{}{}
	}

	missing := make([]string, 0)
	for code := range codes {
		if _, ok := v.idx.MaterialCodesMapped[code]; !ok {
			missing = append(missing, code)
		}
	}
	sort.Strings(missing)

	for _, code := range missing {
		row.Errors = append(row.Errors, internal.ValidationError{
			RowNumber:   row.RowNumber,
			Kind:        internal.ErrMaterialNotFound,
			FieldName:   "material_code",
			FieldValue:  code,
			Message:     fmt.Sprintf("material %s has no mapping at this plant", code),
			Recoverable: true,
		})
	}
}

func (v *BatchValidator) checkDuplicate(row *internal.ValidatedRow) {
	number := util.NormalizeRemisionNumber(row.RemisionNumber)
	if number == "" {
		return
	}
	if _, exists := v.idx.ExistingRemisiones[number]; exists {
		row.Errors = append(row.Errors, internal.ValidationError{
			RowNumber:   row.RowNumber,
			Kind:        internal.ErrDuplicateRemision,
			FieldName:   "remision_number",
			FieldValue:  row.RemisionNumber,
			Message:     fmt.Sprintf("remision %s already exists for this plant", number),
			Recoverable: false,
		})
	}
}

func finalizeStatus(row *internal.ValidatedRow) {
	hasError := false
	hasRecoverable := false
	for _, e := range row.Errors {
		if e.Recoverable {
			hasRecoverable = true
		} else {
			hasError = true
		}
	}
	switch {
	case hasError:
		row.Status = internal.StatusError
	case hasRecoverable:
		row.Status = internal.StatusWarning
	default:
		row.Status = internal.StatusValid
	}
}
