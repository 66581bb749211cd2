package pipeline

import (
	"fmt"
	"math"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/util"
)

// volumeTolerance absorbs rounding differences between Arkik exports and
// stored volumes before flagging a real change.
const volumeTolerance = 0.01

// Classifier scores the risk of overwriting an already-stored remision
// and recommends a handling strategy. It runs as a separate pass over the
// rows whose numbers collided during validation; its output is advisory
// and the caller may override any recommendation per remision.
type Classifier struct {
	lowMax    int
	mediumMax int
}

func NewClassifier(cfg config.Config) *Classifier {
	return &Classifier{lowMax: cfg.RiskLowMax, mediumMax: cfg.RiskMediumMax}
}

// Analyze pairs each existing record with the incoming row carrying the
// same remision number and classifies it. Existing records with no
// incoming counterpart are ignored; they are not part of this import.
func (c *Classifier) Analyze(existing []internal.ExistingRecordRef, rows []internal.ValidatedRow) []internal.DuplicateInfo {
	byNumber := map[string]internal.ValidatedRow{}
	for _, row := range rows {
		if n := util.NormalizeRemisionNumber(row.RemisionNumber); n != "" {
			byNumber[n] = row
		}
	}

	infos := make([]internal.DuplicateInfo, 0, len(existing))
	for _, ref := range existing {
		row, ok := byNumber[util.NormalizeRemisionNumber(ref.RemisionNumber)]
		if !ok {
			continue
		}
		infos = append(infos, c.classify(ref, row))
	}
	return infos
}

func (c *Classifier) classify(ref internal.ExistingRecordRef, row internal.ValidatedRow) internal.DuplicateInfo {
	info := internal.DuplicateInfo{
		RemisionNumber: ref.RemisionNumber,
		Existing:       ref,
	}

	info.VolumeChanged = math.Abs(ref.Volume-row.Volume) > volumeTolerance
	info.DateChanged = !sameDay(ref.Date, row.Date)
	info.MaterialsMissing = !ref.HasMaterials && rowHasMaterials(row)

	score := 0
	if ref.HasStatusDecisions {
		score += 3
		info.Notes = append(info.Notes, "existing record has status decisions")
	}
	if ref.HasReassignments {
		score += 3
		info.Notes = append(info.Notes, "existing record has volume reassignments")
	}
	if ref.HasWasteMaterials {
		score += 2
		info.Notes = append(info.Notes, "existing record has waste material entries")
	}
	if info.VolumeChanged {
		score += 2
		info.Notes = append(info.Notes, fmt.Sprintf("volume changed %.2f -> %.2f", ref.Volume, row.Volume))
	}
	if info.DateChanged {
		score += 1
		info.Notes = append(info.Notes, "delivery date changed")
	}
	if info.MaterialsMissing {
		score += 1
		info.Notes = append(info.Notes, "existing record is missing material consumption")
	}

	switch {
	case score <= c.lowMax:
		info.RiskLevel = internal.RiskLow
	case score <= c.mediumMax:
		info.RiskLevel = internal.RiskMedium
	default:
		info.RiskLevel = internal.RiskHigh
	}

	info.SuggestedStrategy = c.recommend(ref, info)
	return info
}

// recommend picks a strategy in priority order. Backfilling materials
// into a bare record is always safe; anything with live downstream
// dependents at high risk is never silently overwritten.
func (c *Classifier) recommend(ref internal.ExistingRecordRef, info internal.DuplicateInfo) internal.DuplicateStrategy {
	if info.MaterialsMissing && !ref.HasStatusDecisions && !ref.HasReassignments && !ref.HasWasteMaterials {
		return internal.StrategyUpdateMaterialsOnly
	}
	if info.RiskLevel == internal.RiskHigh {
		return internal.StrategySkip
	}
	if info.RiskLevel == internal.RiskMedium {
		return internal.StrategyMerge
	}
	return internal.StrategyUpdateMaterialsOnly
}

// Recommend flattens the analysis into advisory decisions.
func (c *Classifier) Recommend(infos []internal.DuplicateInfo) []internal.DuplicateDecision {
	out := make([]internal.DuplicateDecision, 0, len(infos))
	for _, info := range infos {
		note := ""
		if len(info.Notes) > 0 {
			note = info.Notes[0]
		}
		out = append(out, internal.DuplicateDecision{
			RemisionNumber: info.RemisionNumber,
			Strategy:       info.SuggestedStrategy,
			Notes:          note,
		})
	}
	return out
}

// ApplyDecisions partitions rows into inserts, skips, and updates.
// Explicit caller decisions always win over the classifier's
// recommendation for the same remision number.
func (c *Classifier) ApplyDecisions(rows []internal.ValidatedRow, infos []internal.DuplicateInfo, decisions []internal.DuplicateDecision) internal.DuplicatePartition {
	infoByNumber := map[string]internal.DuplicateInfo{}
	for _, info := range infos {
		infoByNumber[util.NormalizeRemisionNumber(info.RemisionNumber)] = info
	}
	decisionByNumber := map[string]internal.DuplicateDecision{}
	for _, d := range decisions {
		decisionByNumber[util.NormalizeRemisionNumber(d.RemisionNumber)] = d
	}

	partition := internal.DuplicatePartition{}
	for _, row := range rows {
		number := util.NormalizeRemisionNumber(row.RemisionNumber)
		info, isDuplicate := infoByNumber[number]
		if !isDuplicate {
			partition.ToInsert = append(partition.ToInsert, row)
			continue
		}

		switch info.RiskLevel {
		case internal.RiskLow:
			partition.Summary.LowRisk++
		case internal.RiskMedium:
			partition.Summary.MediumRisk++
		case internal.RiskHigh:
			partition.Summary.HighRisk++
		}

		strategy := info.SuggestedStrategy
		if d, ok := decisionByNumber[number]; ok {
			strategy = d.Strategy
		}

		switch strategy {
		case internal.StrategySkip:
			partition.ToSkip = append(partition.ToSkip, row)
			partition.Summary.Skipped++
		case internal.StrategyUpdateMaterialsOnly:
			partition.ToUpdate = append(partition.ToUpdate, internal.DuplicateUpdate{
				Row:                row,
				ExistingRemisionID: info.Existing.RemisionID,
				Strategy:           strategy,
				PreserveExisting:   true,
			})
			partition.Summary.MaterialsOnlyUpdate++
		case internal.StrategyMerge:
			partition.ToUpdate = append(partition.ToUpdate, internal.DuplicateUpdate{
				Row:                row,
				ExistingRemisionID: info.Existing.RemisionID,
				Strategy:           strategy,
				PreserveExisting:   true,
			})
			partition.Summary.Merged++
		case internal.StrategyUpdateAll:
			partition.ToUpdate = append(partition.ToUpdate, internal.DuplicateUpdate{
				Row:                row,
				ExistingRemisionID: info.Existing.RemisionID,
				Strategy:           strategy,
			})
			partition.Summary.FullUpdates++
		}
	}
	return partition
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func rowHasMaterials(row internal.ValidatedRow) bool {
	return len(row.MaterialsTheoretical) > 0 || len(row.MaterialsActual) > 0
}
