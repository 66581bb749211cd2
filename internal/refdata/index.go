package refdata

import (
	"sort"
	"strings"

	"arkik/internal"
	"arkik/internal/util"
)

// Index holds the per-batch lookup structures validation runs against.
// It is read-only once built; no synchronization is needed afterwards.
type Index struct {
	RecipeByLongCode  map[string]internal.Recipe
	RecipeByShortCode map[string]internal.Recipe

	// FuzzyRecipeCache is keyed by normalized *input* code from the batch,
	// precomputed once since distinct codes repeat across many rows.
	FuzzyRecipeCache map[string]internal.Recipe

	PricingByRecipeID   map[string][]internal.PriceCandidate
	MaterialCodesMapped map[string]struct{}
	ExistingRemisiones  map[string]struct{}

	FuzzyRecipeHits int
	FromPrices      int
	FromQuotes      int
}

func BuildIndex(
	recipes []internal.Recipe,
	prices []internal.PriceCandidate,
	quotes []internal.PriceCandidate,
	mappedMaterialCodes []string,
	existingRemisiones []string,
	inputCodes []string,
	fuzzyMaxDistance int,
) *Index {
	idx := &Index{
		RecipeByLongCode:    map[string]internal.Recipe{},
		RecipeByShortCode:   map[string]internal.Recipe{},
		FuzzyRecipeCache:    map[string]internal.Recipe{},
		PricingByRecipeID:   map[string][]internal.PriceCandidate{},
		MaterialCodesMapped: map[string]struct{}{},
		ExistingRemisiones:  map[string]struct{}{},
	}

	for _, r := range recipes {
		if code := util.Normalize(r.LongCode); code != "" {
			idx.RecipeByLongCode[code] = r
		}
		if code := util.Normalize(r.ShortCode); code != "" {
			idx.RecipeByShortCode[code] = r
		}

		for _, input := range inputCodes {
			norm := util.Normalize(input)
			if norm == "" {
				continue
			}
			if _, done := idx.FuzzyRecipeCache[norm]; done {
				continue
			}
			if IsFuzzyRecipeMatch(norm, r, fuzzyMaxDistance) {
				idx.FuzzyRecipeCache[norm] = r
				idx.FuzzyRecipeHits++
			}
		}
	}

	for _, p := range prices {
		idx.PricingByRecipeID[p.RecipeID] = append(idx.PricingByRecipeID[p.RecipeID], p)
	}
	for _, q := range quotes {
		idx.PricingByRecipeID[q.RecipeID] = append(idx.PricingByRecipeID[q.RecipeID], q)
	}
	idx.FromPrices = len(prices)
	idx.FromQuotes = len(quotes)

	// Diagnostic ordering and selector tie-break: prices before quotes,
	// then newest first. The weighted scorer picks the actual winner.
	for recipeID := range idx.PricingByRecipeID {
		list := idx.PricingByRecipeID[recipeID]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Source != list[j].Source {
				return list[i].Source == internal.SourcePrice
			}
			return list[i].EffectiveDate.After(list[j].EffectiveDate)
		})
	}

	for _, code := range mappedMaterialCodes {
		idx.MaterialCodesMapped[code] = struct{}{}
	}
	for _, number := range existingRemisiones {
		idx.ExistingRemisiones[number] = struct{}{}
	}

	return idx
}

// IsFuzzyRecipeMatch reports whether an input code plausibly refers to the
// recipe: normalized equality, substring containment either way, or edit
// distance within maxDistance against any of the recipe's codes. The
// distance bound is a fixed typo/OCR tolerance and never scales with
// string length.
func IsFuzzyRecipeMatch(input string, recipe internal.Recipe, maxDistance int) bool {
	norm := util.Normalize(input)
	if norm == "" {
		return false
	}
	for _, code := range []string{recipe.LongCode, recipe.ShortCode, recipe.AlternateCode} {
		nc := util.Normalize(code)
		if nc == "" {
			continue
		}
		if nc == norm {
			return true
		}
		if strings.Contains(nc, norm) || strings.Contains(norm, nc) {
			return true
		}
		if util.LevenshteinDistance(norm, nc) <= maxDistance {
			return true
		}
	}
	return false
}
