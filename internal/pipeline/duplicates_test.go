package pipeline

import (
	"testing"
	"time"

	"arkik/internal"
	"arkik/internal/config"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	return NewClassifier(cfg)
}

func TestClassifyReassignmentsOnly(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	ref := internal.ExistingRecordRef{
		RemisionID:       "uuid-1",
		RemisionNumber:   "7789",
		Volume:           7.5,
		Date:             date,
		HasMaterials:     true,
		HasReassignments: true,
	}
	row := internal.ValidatedRow{RawRow: internal.RawRow{RemisionNumber: "7789", Volume: 7.5, Date: date}}

	infos := c.Analyze([]internal.ExistingRecordRef{ref}, []internal.ValidatedRow{row})
	if len(infos) != 1 {
		t.Fatalf("expected one info, got %d", len(infos))
	}
	info := infos[0]
	if info.RiskLevel != internal.RiskMedium {
		t.Fatalf("reassignments alone score 3 points, expected medium risk, got %s", info.RiskLevel)
	}
	if info.SuggestedStrategy != internal.StrategyMerge {
		t.Fatalf("medium risk should suggest merge, got %s", info.SuggestedStrategy)
	}
}

func TestClassifyStatusDecisionsRaiseToHigh(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	ref := internal.ExistingRecordRef{
		RemisionID:         "uuid-1",
		RemisionNumber:     "7789",
		Volume:             7.5,
		Date:               date,
		HasMaterials:       true,
		HasReassignments:   true,
		HasStatusDecisions: true,
	}
	row := internal.ValidatedRow{RawRow: internal.RawRow{RemisionNumber: "7789", Volume: 7.5, Date: date}}

	infos := c.Analyze([]internal.ExistingRecordRef{ref}, []internal.ValidatedRow{row})
	info := infos[0]
	if info.RiskLevel != internal.RiskHigh {
		t.Fatalf("6 points must be high risk, got %s", info.RiskLevel)
	}
	if info.SuggestedStrategy != internal.StrategySkip {
		t.Fatalf("high risk must suggest skip, got %s", info.SuggestedStrategy)
	}
}

func TestClassifyMaterialsBackfill(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	ref := internal.ExistingRecordRef{
		RemisionID:     "uuid-1",
		RemisionNumber: "7789",
		Volume:         7.5,
		Date:           date,
	}
	row := internal.ValidatedRow{RawRow: internal.RawRow{
		RemisionNumber:       "7789",
		Volume:               7.5,
		Date:                 date,
		MaterialsTheoretical: map[string]float64{"CEM-1": 350},
	}}

	info := c.Analyze([]internal.ExistingRecordRef{ref}, []internal.ValidatedRow{row})[0]
	if !info.MaterialsMissing {
		t.Fatalf("expected materialsMissing: %+v", info)
	}
	if info.RiskLevel != internal.RiskLow {
		t.Fatalf("1 point must be low risk, got %s", info.RiskLevel)
	}
	if info.SuggestedStrategy != internal.StrategyUpdateMaterialsOnly {
		t.Fatalf("bare record backfill should be materials-only, got %s", info.SuggestedStrategy)
	}
}

func TestClassifyVolumeAndDateChanges(t *testing.T) {
	c := newTestClassifier(t)

	ref := internal.ExistingRecordRef{
		RemisionID:     "uuid-1",
		RemisionNumber: "7789",
		Volume:         7.5,
		Date:           time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC),
		HasMaterials:   true,
	}
	row := internal.ValidatedRow{RawRow: internal.RawRow{
		RemisionNumber: "7789",
		Volume:         9.0,
		Date:           time.Date(2026, 7, 21, 0, 0, 0, 0, time.UTC),
	}}

	info := c.Analyze([]internal.ExistingRecordRef{ref}, []internal.ValidatedRow{row})[0]
	if !info.VolumeChanged || !info.DateChanged {
		t.Fatalf("expected volume and date changes: %+v", info)
	}
	// 2 + 1 = 3 points.
	if info.RiskLevel != internal.RiskMedium {
		t.Fatalf("expected medium risk, got %s", info.RiskLevel)
	}
}

func TestApplyDecisionsPartition(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	existing := []internal.ExistingRecordRef{
		{RemisionID: "uuid-skip", RemisionNumber: "100", Volume: 5, Date: date, HasMaterials: true, HasStatusDecisions: true, HasReassignments: true},
		{RemisionID: "uuid-backfill", RemisionNumber: "200", Volume: 5, Date: date},
	}
	rows := []internal.ValidatedRow{
		{RawRow: internal.RawRow{RemisionNumber: "100", Volume: 5, Date: date}},
		{RawRow: internal.RawRow{RemisionNumber: "200", Volume: 5, Date: date, MaterialsTheoretical: map[string]float64{"CEM-1": 1}}},
		{RawRow: internal.RawRow{RemisionNumber: "300", Volume: 5, Date: date}},
	}

	infos := c.Analyze(existing, rows)
	partition := c.ApplyDecisions(rows, infos, nil)

	if len(partition.ToInsert) != 1 || partition.ToInsert[0].RemisionNumber != "300" {
		t.Fatalf("unexpected inserts: %+v", partition.ToInsert)
	}
	if len(partition.ToSkip) != 1 || partition.ToSkip[0].RemisionNumber != "100" {
		t.Fatalf("unexpected skips: %+v", partition.ToSkip)
	}
	if len(partition.ToUpdate) != 1 || partition.ToUpdate[0].Strategy != internal.StrategyUpdateMaterialsOnly {
		t.Fatalf("unexpected updates: %+v", partition.ToUpdate)
	}
	if partition.Summary.Skipped != 1 || partition.Summary.MaterialsOnlyUpdate != 1 {
		t.Fatalf("unexpected summary: %+v", partition.Summary)
	}
}

func TestApplyDecisionsExplicitOverride(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	existing := []internal.ExistingRecordRef{
		{RemisionID: "uuid-1", RemisionNumber: "100", Volume: 5, Date: date, HasMaterials: true, HasStatusDecisions: true, HasReassignments: true},
	}
	rows := []internal.ValidatedRow{
		{RawRow: internal.RawRow{RemisionNumber: "100", Volume: 5, Date: date}},
	}

	infos := c.Analyze(existing, rows)
	if infos[0].SuggestedStrategy != internal.StrategySkip {
		t.Fatalf("precondition: recommendation should be skip, got %s", infos[0].SuggestedStrategy)
	}

	override := []internal.DuplicateDecision{{RemisionNumber: "100", Strategy: internal.StrategyUpdateAll}}
	partition := c.ApplyDecisions(rows, infos, override)

	if len(partition.ToUpdate) != 1 || partition.ToUpdate[0].Strategy != internal.StrategyUpdateAll {
		t.Fatalf("explicit decision must win: %+v", partition)
	}
	if partition.ToUpdate[0].PreserveExisting {
		t.Fatalf("update_all must not preserve existing data: %+v", partition.ToUpdate[0])
	}
	if partition.Summary.FullUpdates != 1 || partition.Summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", partition.Summary)
	}
}
