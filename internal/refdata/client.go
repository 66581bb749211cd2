package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arkik/internal"
	"arkik/internal/config"
)

// Client talks to the central plant-management API that owns recipes,
// prices, approved quotes, and material mappings. The engine itself never
// touches it; sync pulls the data into the local mirror.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type recipePayload struct {
	Recipes []recipeRow `json:"recipes"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
}

type recipeRow struct {
	ID            string `json:"id"`
	PlantID       string `json:"plant_id"`
	LongCode      string `json:"arkik_long_code"`
	ShortCode     string `json:"recipe_code"`
	AlternateCode string `json:"arkik_short_code"`
}

type pricingPayload struct {
	Entries []pricingRow `json:"entries"`
	Page    int          `json:"page"`
	Pages   int          `json:"pages"`
}

type pricingRow struct {
	ID           string  `json:"id"`
	RecipeID     string  `json:"recipe_id"`
	ClientID     string  `json:"client_id"`
	SiteName     string  `json:"construction_site"`
	Amount       float64 `json:"amount"`
	DateRef      string  `json:"date_ref"`
	BusinessName string  `json:"business_name"`
	ClientCode   string  `json:"client_code"`
}

type materialMappingPayload struct {
	Mappings []MaterialMapping `json:"mappings"`
}

type MaterialMapping struct {
	PlantID    string `json:"plant_id"`
	ArkikCode  string `json:"arkik_code"`
	MaterialID string `json:"material_id"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.MasterTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.MasterRateLimit),
	}
}

func (c *Client) GetRecipes(ctx context.Context, plantID string) ([]internal.Recipe, error) {
	out := []internal.Recipe{}
	for page := 1; ; page++ {
		body, err := c.fetchJSON(ctx, "recipes", map[string]string{
			"plant_id": plantID,
			"page":     strconv.Itoa(page),
		})
		if err != nil {
			return nil, err
		}
		var payload recipePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		for _, row := range payload.Recipes {
			out = append(out, internal.Recipe{
				ID:            row.ID,
				PlantID:       row.PlantID,
				LongCode:      row.LongCode,
				ShortCode:     row.ShortCode,
				AlternateCode: row.AlternateCode,
			})
		}
		if payload.Pages == 0 || page >= payload.Pages || len(payload.Recipes) == 0 {
			break
		}
	}
	return out, nil
}

func (c *Client) GetActivePrices(ctx context.Context, plantID string, updatedSince *time.Time) ([]internal.PriceCandidate, error) {
	params := map[string]string{"plant_id": plantID, "is_active": "true"}
	if updatedSince != nil {
		params["updated_since"] = updatedSince.UTC().Format(time.RFC3339)
	}
	return c.getPricing(ctx, "product-prices", params, internal.SourcePrice)
}

func (c *Client) GetApprovedQuotes(ctx context.Context, plantID string, updatedSince *time.Time) ([]internal.PriceCandidate, error) {
	params := map[string]string{"plant_id": plantID, "status": "APPROVED"}
	if updatedSince != nil {
		params["updated_since"] = updatedSince.UTC().Format(time.RFC3339)
	}
	return c.getPricing(ctx, "quote-details", params, internal.SourceQuote)
}

func (c *Client) GetMaterialMappings(ctx context.Context, plantID string) ([]MaterialMapping, error) {
	body, err := c.fetchJSON(ctx, "material-mappings", map[string]string{
		"plant_id":  plantID,
		"is_active": "true",
	})
	if err != nil {
		return nil, err
	}
	var payload materialMappingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Mappings, nil
}

func (c *Client) getPricing(ctx context.Context, endpoint string, params map[string]string, source internal.PriceSource) ([]internal.PriceCandidate, error) {
	out := []internal.PriceCandidate{}
	for page := 1; ; page++ {
		query := map[string]string{}
		for k, v := range params {
			query[k] = v
		}
		query["page"] = strconv.Itoa(page)

		body, err := c.fetchJSON(ctx, endpoint, query)
		if err != nil {
			return nil, err
		}
		var payload pricingPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		for _, row := range payload.Entries {
			candidate, err := toPriceCandidate(row, source)
			if err != nil {
				continue
			}
			out = append(out, candidate)
		}
		if payload.Pages == 0 || page >= payload.Pages || len(payload.Entries) == 0 {
			break
		}
	}
	return out, nil
}

func toPriceCandidate(row pricingRow, source internal.PriceSource) (internal.PriceCandidate, error) {
	if row.RecipeID == "" {
		return internal.PriceCandidate{}, errors.New("missing recipe_id")
	}
	dateRef, err := time.Parse(time.RFC3339, row.DateRef)
	if err != nil {
		if d, dayErr := time.Parse("2006-01-02", row.DateRef); dayErr == nil {
			dateRef = d
		} else {
			return internal.PriceCandidate{}, err
		}
	}

	candidate := internal.PriceCandidate{
		RecipeID:          row.RecipeID,
		ClientID:          row.ClientID,
		SiteName:          row.SiteName,
		Amount:            row.Amount,
		Source:            source,
		EffectiveDate:     dateRef,
		ClientDisplayName: row.BusinessName,
		ClientCode:        row.ClientCode,
	}
	if source == internal.SourcePrice {
		candidate.PriceID = row.ID
	} else {
		candidate.QuoteID = row.ID
	}
	return candidate, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.MasterAPIToken) == "" {
		return nil, errors.New("missing MASTER_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.MasterAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.MasterAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("master api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("master api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("master api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("master api request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
