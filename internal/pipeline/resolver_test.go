package pipeline

import (
	"testing"

	"arkik/internal"
	"arkik/internal/refdata"
)

func buildTestIndex(recipes []internal.Recipe, inputCodes []string) *refdata.Index {
	return refdata.BuildIndex(recipes, nil, nil, nil, nil, inputCodes, 2)
}

func TestResolveExactLongCode(t *testing.T) {
	recipes := []internal.Recipe{
		{ID: "r1", LongCode: "250-14-28-B-2-D", ShortCode: "FC250"},
		{ID: "r2", LongCode: "300-14-28-B-2-D", ShortCode: "FC300"},
	}
	idx := buildTestIndex(recipes, nil)

	res, ok := ResolveRecipe(idx, "  250-14-28-b-2-d ", "")
	if !ok {
		t.Fatal("expected exact long-code match")
	}
	if res.Recipe.ID != "r1" || res.Fuzzy {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResolveExactShortCodeViaFallback(t *testing.T) {
	recipes := []internal.Recipe{{ID: "r1", LongCode: "250-14-28-B-2-D", ShortCode: "FC250"}}
	idx := buildTestIndex(recipes, nil)

	res, ok := ResolveRecipe(idx, "no-such-code-anywhere-zz", "fc250")
	if !ok {
		t.Fatal("expected short-code match via fallback")
	}
	if res.Recipe.ID != "r1" || res.Fuzzy {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResolveFuzzyWithinDistance(t *testing.T) {
	recipes := []internal.Recipe{{ID: "r1", LongCode: "FC250X7ZQ", ShortCode: "ZZZZZZ"}}
	// One substitution away from the long code and no exact match.
	idx := buildTestIndex(recipes, []string{"FC250X7ZA"})

	res, ok := ResolveRecipe(idx, "FC250X7ZA", "")
	if !ok {
		t.Fatal("expected fuzzy match at distance 1")
	}
	if res.Recipe.ID != "r1" || !res.Fuzzy {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResolveFailsBeyondDistance(t *testing.T) {
	recipes := []internal.Recipe{{ID: "r1", LongCode: "abcdefgh", ShortCode: "zqwxrtyv"}}
	// Three substitutions away and no containment relation.
	idx := buildTestIndex(recipes, []string{"abcdeXYZ"})

	if _, ok := ResolveRecipe(idx, "abcdeXYZ", ""); ok {
		t.Fatal("distance 3 must not resolve")
	}
}

func TestResolveEmptyCodes(t *testing.T) {
	idx := buildTestIndex([]internal.Recipe{{ID: "r1", LongCode: "A250"}}, nil)
	if _, ok := ResolveRecipe(idx, "", ""); ok {
		t.Fatal("empty codes must not resolve")
	}
}
