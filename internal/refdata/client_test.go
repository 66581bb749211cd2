package refdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"arkik/internal"
	"arkik/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestGetRecipesPaginatesWithRetry(t *testing.T) {
	attempt := 0

	cfg, _ := config.Load()
	cfg.MasterAPIToken = "test"
	cfg.MasterAPIBaseURL = "https://example.test/api/v1"
	cfg.MasterRateLimit = 1000

	client := NewClient(cfg)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/recipes" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test" {
				t.Fatalf("missing bearer token")
			}
			attempt++
			if attempt == 1 {
				return &http.Response{
					StatusCode: http.StatusInternalServerError,
					Body:       io.NopCloser(strings.NewReader(`{"error":"boom"}`)),
					Header:     make(http.Header),
				}, nil
			}

			payload := map[string]any{"success": true, "data": map[string]any{
				"recipes": []map[string]any{{"id": "r1", "plant_id": "plant-1", "arkik_long_code": "250-14-28-B-2-D", "recipe_code": "FC250"}},
				"page":    1, "pages": 2,
			}}
			if attempt == 3 {
				payload = map[string]any{"success": true, "data": map[string]any{
					"recipes": []map[string]any{{"id": "r2", "plant_id": "plant-1", "arkik_long_code": "300-14-28-B-2-D", "recipe_code": "FC300"}},
					"page":    2, "pages": 2,
				}}
			}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	recipes, err := client.GetRecipes(context.Background(), "plant-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recipes) != 2 {
		t.Fatalf("len=%d", len(recipes))
	}
	if recipes[0].ID != "r1" || recipes[1].ID != "r2" {
		t.Fatalf("unexpected recipes: %+v", recipes)
	}
}

func TestGetActivePricesMapsCandidates(t *testing.T) {
	cfg, _ := config.Load()
	cfg.MasterAPIToken = "test"
	cfg.MasterAPIBaseURL = "https://example.test/api/v1"
	cfg.MasterRateLimit = 1000

	client := NewClient(cfg)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/product-prices" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			payload := map[string]any{"success": true, "data": map[string]any{
				"entries": []map[string]any{{
					"id": "p1", "recipe_id": "r1", "client_id": "c1",
					"construction_site": "TORRE NORTE", "amount": 1850.0,
					"date_ref": "2026-07-01", "business_name": "CONSTRUCTORA ABC", "client_code": "C-100",
				}},
				"page": 1, "pages": 1,
			}}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	prices, err := client.GetActivePrices(context.Background(), "plant-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(prices) != 1 {
		t.Fatalf("len=%d", len(prices))
	}
	p := prices[0]
	if p.Source != internal.SourcePrice || p.PriceID != "p1" || p.QuoteID != "" {
		t.Fatalf("candidate not mapped as price: %+v", p)
	}
	if p.Amount != 1850 || p.ClientDisplayName != "CONSTRUCTORA ABC" {
		t.Fatalf("unexpected candidate: %+v", p)
	}
}
