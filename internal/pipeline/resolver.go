package pipeline

import (
	"arkik/internal"
	"arkik/internal/refdata"
	"arkik/internal/util"
)

// Resolution carries the matched recipe plus whether the fuzzy cache,
// rather than an exact code map, produced it.
type Resolution struct {
	Recipe internal.Recipe
	Fuzzy  bool
}

// ResolveRecipe maps a raw product code to a canonical recipe. Strict
// precedence, short-circuiting on first hit: exact long code, exact short
// code via the fallback, fuzzy cache on the primary, fuzzy cache on the
// fallback. Arkik emits the long description as the primary code and the
// technical code as fallback, so the exact paths cover almost every row.
func ResolveRecipe(idx *refdata.Index, primaryCode, fallbackCode string) (Resolution, bool) {
	primary := util.Normalize(primaryCode)
	fallback := util.Normalize(fallbackCode)

	if primary != "" {
		if r, ok := idx.RecipeByLongCode[primary]; ok {
			return Resolution{Recipe: r}, true
		}
	}
	if fallback != "" {
		if r, ok := idx.RecipeByShortCode[fallback]; ok {
			return Resolution{Recipe: r}, true
		}
	}
	if primary != "" {
		if r, ok := idx.FuzzyRecipeCache[primary]; ok {
			return Resolution{Recipe: r, Fuzzy: true}, true
		}
	}
	if fallback != "" {
		if r, ok := idx.FuzzyRecipeCache[fallback]; ok {
			return Resolution{Recipe: r, Fuzzy: true}, true
		}
	}
	return Resolution{}, false
}
