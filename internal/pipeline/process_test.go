package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/storage"
)

func newTestProcessor(t *testing.T) (*ProcessingService, *storage.DB) {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.PlantID = "plant-1"

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewProcessingService(db, cfg), db
}

func stagedRow(number string, volume float64, status internal.RowStatus, errs ...internal.ValidationError) internal.ValidatedRow {
	row := internal.ValidatedRow{Status: status, Errors: errs, RecipeID: "r1"}
	row.RemisionNumber = number
	row.Volume = volume
	row.Date = time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	row.MaterialsTheoretical = map[string]float64{"CEM-1": 310}
	row.MaterialsActual = map[string]float64{"CEM-1": 308}
	return row
}

func TestCommitEmailAppliesDuplicateDecisions(t *testing.T) {
	svc, db := newTestProcessor(t)
	ctx := context.Background()

	// The stored record has no materials yet; the incoming row backfills
	// them through the duplicate pass.
	existing := internal.ValidatedRow{}
	existing.RemisionNumber = "7789"
	existing.Volume = 7.5
	existing.Date = time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if err := db.InsertRemisiones("plant-1", []internal.ValidatedRow{existing}); err != nil {
		t.Fatal(err)
	}

	email, err := db.UpsertEmail("imap", "<commit-test@plant>", "reporte", "arkik@plant", "", "hash", "/dev/null", "processed")
	if err != nil {
		t.Fatal(err)
	}

	duplicate := stagedRow("7789", 9, internal.StatusError, internal.ValidationError{
		RowNumber:   1,
		Kind:        internal.ErrDuplicateRemision,
		FieldName:   "remision_number",
		FieldValue:  "7789",
		Recoverable: false,
	})
	fresh := stagedRow("7790", 8, internal.StatusValid)
	if err := db.InsertStagingRows(email.ID, []internal.ValidatedRow{duplicate, fresh}); err != nil {
		t.Fatal(err)
	}

	decisions := []internal.DuplicateDecision{{RemisionNumber: "7789", Strategy: internal.StrategyUpdateMaterialsOnly}}
	partition, err := svc.CommitEmail(ctx, email.ID, decisions)
	if err != nil {
		t.Fatal(err)
	}

	if len(partition.ToUpdate) != 1 || partition.ToUpdate[0].Strategy != internal.StrategyUpdateMaterialsOnly {
		t.Fatalf("colliding row must land in the update bucket: %+v", partition)
	}
	if partition.Summary.MaterialsOnlyUpdate != 1 {
		t.Fatalf("unexpected summary: %+v", partition.Summary)
	}
	if len(partition.ToInsert) != 1 || partition.ToInsert[0].RemisionNumber != "7790" {
		t.Fatalf("non-colliding row must be inserted: %+v", partition.ToInsert)
	}

	refs, err := db.ExistingRemisionRefs(ctx, "plant-1", []string{"7789"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || !refs[0].HasMaterials {
		t.Fatalf("materials-only update did not persist: %+v", refs)
	}
	if refs[0].Volume != 7.5 {
		t.Fatalf("preserving strategy must not touch the header: %+v", refs[0])
	}
}

func TestCommitEmailSkipDecisionWins(t *testing.T) {
	svc, db := newTestProcessor(t)
	ctx := context.Background()

	existing := internal.ValidatedRow{}
	existing.RemisionNumber = "100"
	existing.Volume = 5
	existing.Date = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := db.InsertRemisiones("plant-1", []internal.ValidatedRow{existing}); err != nil {
		t.Fatal(err)
	}

	email, err := db.UpsertEmail("imap", "<skip-test@plant>", "reporte", "arkik@plant", "", "hash", "/dev/null", "processed")
	if err != nil {
		t.Fatal(err)
	}
	duplicate := stagedRow("100", 9, internal.StatusError, internal.ValidationError{
		Kind: internal.ErrDuplicateRemision, Recoverable: false,
	})
	if err := db.InsertStagingRows(email.ID, []internal.ValidatedRow{duplicate}); err != nil {
		t.Fatal(err)
	}

	decisions := []internal.DuplicateDecision{{RemisionNumber: "100", Strategy: internal.StrategySkip}}
	partition, err := svc.CommitEmail(ctx, email.ID, decisions)
	if err != nil {
		t.Fatal(err)
	}
	if len(partition.ToSkip) != 1 || partition.Summary.Skipped != 1 {
		t.Fatalf("explicit skip must land in the skip bucket: %+v", partition)
	}

	refs, err := db.ExistingRemisionRefs(ctx, "plant-1", []string{"100"})
	if err != nil {
		t.Fatal(err)
	}
	if refs[0].Volume != 5 {
		t.Fatalf("skipped row must leave the stored record untouched: %+v", refs[0])
	}
}

func TestCommitEmailDropsBrokenRows(t *testing.T) {
	svc, db := newTestProcessor(t)

	email, err := db.UpsertEmail("imap", "<broken-test@plant>", "reporte", "arkik@plant", "", "hash", "/dev/null", "processed")
	if err != nil {
		t.Fatal(err)
	}
	broken := stagedRow("500", 0, internal.StatusError, internal.ValidationError{
		Kind: internal.ErrInvalidVolume, Recoverable: false,
	})
	unpriced := stagedRow("501", 7, internal.StatusError, internal.ValidationError{
		Kind: internal.ErrRecipeNoPrice, Recoverable: true,
	})
	if err := db.InsertStagingRows(email.ID, []internal.ValidatedRow{broken, unpriced}); err != nil {
		t.Fatal(err)
	}

	partition, err := svc.CommitEmail(context.Background(), email.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(partition.ToInsert) != 0 || len(partition.ToUpdate) != 0 || len(partition.ToSkip) != 0 {
		t.Fatalf("rows broken for non-collision reasons must not commit: %+v", partition)
	}
}
