package refdata

import (
	"context"
	"sync"

	"arkik/internal"
	"arkik/internal/util"
)

// Source is the bulk-fetch boundary. The concrete mechanism (sqlite
// mirror, REST, fixtures in tests) is the caller's concern.
type Source interface {
	Recipes(ctx context.Context, plantID string) ([]internal.Recipe, error)
	ActivePrices(ctx context.Context, plantID string) ([]internal.PriceCandidate, error)
	ApprovedQuotes(ctx context.Context, plantID string) ([]internal.PriceCandidate, error)
	MappedMaterialCodes(ctx context.Context, plantID string, codes []string) ([]string, error)
	ExistingRemisionNumbers(ctx context.Context, plantID string, numbers []string) ([]string, error)
}

// Load derives the distinct codes referenced by the batch, issues the five
// reference loads in parallel, joins them, and builds the Index. A failed
// load yields an empty index for that concern only; downstream treats
// missing data as the normal no-match path instead of aborting the batch.
func Load(ctx context.Context, src Source, plantID string, rows []internal.RawRow, fuzzyMaxDistance int) *Index {
	inputCodes, remisionNumbers, materialCodes := distinctBatchKeys(rows)

	var (
		recipes   []internal.Recipe
		prices    []internal.PriceCandidate
		quotes    []internal.PriceCandidate
		materials []string
		existing  []string
	)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		if data, err := src.Recipes(ctx, plantID); err == nil {
			recipes = data
		}
	}()
	go func() {
		defer wg.Done()
		if data, err := src.ActivePrices(ctx, plantID); err == nil {
			prices = data
		}
	}()
	go func() {
		defer wg.Done()
		if data, err := src.ApprovedQuotes(ctx, plantID); err == nil {
			quotes = data
		}
	}()
	go func() {
		defer wg.Done()
		if data, err := src.MappedMaterialCodes(ctx, plantID, materialCodes); err == nil {
			materials = data
		}
	}()
	go func() {
		defer wg.Done()
		if data, err := src.ExistingRemisionNumbers(ctx, plantID, remisionNumbers); err == nil {
			existing = data
		}
	}()
	wg.Wait()

	return BuildIndex(recipes, prices, quotes, materials, existing, inputCodes, fuzzyMaxDistance)
}

func distinctBatchKeys(rows []internal.RawRow) (inputCodes, remisionNumbers, materialCodes []string) {
	codes := map[string]struct{}{}
	numbers := map[string]struct{}{}
	mats := map[string]struct{}{}

	for _, row := range rows {
		if norm := util.Normalize(row.ProductCode); norm != "" {
			codes[norm] = struct{}{}
		}
		if norm := util.Normalize(row.ProductCodeFallback); norm != "" {
			codes[norm] = struct{}{}
		}
		if norm := util.NormalizeRemisionNumber(row.RemisionNumber); norm != "" {
			numbers[norm] = struct{}{}
		}
		for code := range row.MaterialsTheoretical {
			mats[code] = struct{}{}
		}
		for code := range row.MaterialsActual {
			mats[code] = struct{}{}
		}
	}

	for c := range codes {
		inputCodes = append(inputCodes, c)
	}
	for n := range numbers {
		remisionNumbers = append(remisionNumbers, n)
	}
	for m := range mats {
		materialCodes = append(materialCodes, m)
	}
	return inputCodes, remisionNumbers, materialCodes
}
