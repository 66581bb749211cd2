package refdata

import (
	"context"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/storage"
)

// SyncService keeps the local sqlite mirror current with the central
// plant-management API. Validation only ever reads the mirror, so a sync
// outage degrades to stale reference data instead of a failed import.
type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg}
}

type SyncCounts struct {
	Recipes          int
	Prices           int
	Quotes           int
	MaterialMappings int
}

func (s *SyncService) InitialSync(ctx context.Context) (SyncCounts, error) {
	return s.sync(ctx, nil)
}

func (s *SyncService) IncrementalSync(ctx context.Context) (SyncCounts, error) {
	since := time.Now().Add(-time.Duration(s.cfg.IncrementalLookbackHrs) * time.Hour)
	return s.sync(ctx, &since)
}

func (s *SyncService) sync(ctx context.Context, since *time.Time) (SyncCounts, error) {
	plantID := s.cfg.PlantID
	counts := SyncCounts{}

	recipes, err := s.client.GetRecipes(ctx, plantID)
	if err != nil {
		return counts, err
	}
	if err := s.db.UpsertRecipes(recipes); err != nil {
		return counts, err
	}
	counts.Recipes = len(recipes)

	prices, err := s.client.GetActivePrices(ctx, plantID, since)
	if err != nil {
		return counts, err
	}
	quotes, err := s.client.GetApprovedQuotes(ctx, plantID, since)
	if err != nil {
		return counts, err
	}
	candidates := make([]internal.PriceCandidate, 0, len(prices)+len(quotes))
	candidates = append(candidates, prices...)
	candidates = append(candidates, quotes...)
	if err := s.db.UpsertPriceCandidates(plantID, candidates); err != nil {
		return counts, err
	}
	counts.Prices = len(prices)
	counts.Quotes = len(quotes)

	mappings, err := s.client.GetMaterialMappings(ctx, plantID)
	if err != nil {
		return counts, err
	}
	byCode := make(map[string]string, len(mappings))
	for _, m := range mappings {
		byCode[m.ArkikCode] = m.MaterialID
	}
	if err := s.db.UpsertMaterialMappings(plantID, byCode); err != nil {
		return counts, err
	}
	counts.MaterialMappings = len(mappings)

	key := "refdata.last_initial_sync"
	if since != nil {
		key = "refdata.last_incremental_sync"
	}
	_ = s.db.SetMetadata(key, time.Now().UTC().Format(time.RFC3339))

	return counts, nil
}
