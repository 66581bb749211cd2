package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/refdata"
	"arkik/internal/storage"
)

// ProcessingService turns a fetched email into a validated staged batch:
// extract rows, build the reference index against the local mirror, run
// the validator, persist staging rows and errors.
type ProcessingService struct {
	db  *storage.DB
	cfg config.Config
}

func NewProcessingService(db *storage.DB, cfg config.Config) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg}
}

type ProcessResult struct {
	EmailID  int
	Rows     int
	Valid    int
	Warnings int
	Errored  int
	Stats    internal.BatchStats
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedRows := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processedEmails, processedRows, err
		}
		processedEmails++
		processedRows += res.Rows
	}
	return processedEmails, processedRows, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	extracted, err := ExtractRowsFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	detect := DetectDispatchReport(firstNonEmpty(extracted.Subject, email.Subject), extracted.Text, extracted.HTML, extracted.AttachmentNames)
	if err := s.db.ClearEmailStaging(email.ID); err != nil {
		return ProcessResult{}, err
	}

	if !detect.IsDispatchReport {
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(traceID(), email.ID,
			map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			map[string]int{"rows": 0}, internal.BatchStats{})
		return ProcessResult{EmailID: email.ID}, nil
	}

	result, err := s.ValidateRows(ctx, extracted.Rows)
	if err != nil {
		return ProcessResult{}, err
	}

	if err := s.db.InsertStagingRows(email.ID, result.Validated); err != nil {
		return ProcessResult{}, err
	}
	structural := extracted.Errors
	if err := s.db.InsertValidationErrors(email.ID, append(structural, result.Errors...)); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}

	out := ProcessResult{EmailID: email.ID, Rows: len(result.Validated), Stats: result.Stats}
	for _, row := range result.Validated {
		switch row.Status {
		case internal.StatusValid:
			out.Valid++
		case internal.StatusWarning:
			out.Warnings++
		case internal.StatusError:
			out.Errored++
		}
	}

	_ = s.db.InsertRun(traceID(), email.ID,
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"rows": out.Rows, "valid": out.Valid, "warnings": out.Warnings, "errors": out.Errored},
		result.Stats)

	return out, nil
}

// ValidateRows runs the full engine pass over already-extracted rows:
// concurrent reference load from the mirror, then sequential validation.
func (s *ProcessingService) ValidateRows(ctx context.Context, rows []internal.RawRow) (internal.BatchResult, error) {
	idx := refdata.Load(ctx, s.db, s.cfg.PlantID, rows, s.cfg.FuzzyMaxDistance)
	validator := NewBatchValidator(idx, s.cfg, time.Now())
	return validator.Run(ctx, rows), nil
}

// AnalyzeDuplicates runs the separate duplicate pass over a validated
// batch and returns the classifier's advisory decisions.
func (s *ProcessingService) AnalyzeDuplicates(ctx context.Context, rows []internal.ValidatedRow) ([]internal.DuplicateInfo, []internal.DuplicateDecision, error) {
	numbers := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.RemisionNumber != "" {
			numbers = append(numbers, row.RemisionNumber)
		}
	}
	existing, err := s.db.ExistingRemisionRefs(ctx, s.cfg.PlantID, numbers)
	if err != nil {
		return nil, nil, err
	}

	classifier := NewClassifier(s.cfg)
	infos := classifier.Analyze(existing, rows)
	return infos, classifier.Recommend(infos), nil
}

// CommitEmail persists a processed email's staged batch: broken rows are
// dropped, duplicates are partitioned per the classifier (with caller
// decisions winning), new remisiones are inserted and colliding ones
// updated per their strategy.
func (s *ProcessingService) CommitEmail(ctx context.Context, emailID int, decisions []internal.DuplicateDecision) (internal.DuplicatePartition, error) {
	rows, err := s.db.GetValidatedRows(emailID)
	if err != nil {
		return internal.DuplicatePartition{}, err
	}

	importable := make([]internal.ValidatedRow, 0, len(rows))
	for _, row := range rows {
		if committable(row) {
			importable = append(importable, row)
		}
	}

	infos, _, err := s.AnalyzeDuplicates(ctx, importable)
	if err != nil {
		return internal.DuplicatePartition{}, err
	}

	classifier := NewClassifier(s.cfg)
	partition := classifier.ApplyDecisions(importable, infos, decisions)

	if err := s.db.InsertRemisiones(s.cfg.PlantID, partition.ToInsert); err != nil {
		return partition, err
	}
	if err := s.db.ApplyDuplicateUpdates(s.cfg.PlantID, partition.ToUpdate); err != nil {
		return partition, err
	}
	if err := s.db.UpdateEmailStatus(emailID, "committed"); err != nil {
		return partition, err
	}
	return partition, nil
}

// committable keeps valid and warning rows, and error rows whose only
// hard failure is a remision collision. Collisions are exactly what the
// duplicate pass decides, so dropping them here would strand the skip and
// update strategies; rows broken for any other reason stay out.
func committable(row internal.ValidatedRow) bool {
	if row.Status != internal.StatusError {
		return true
	}
	hasCollision := false
	for _, e := range row.Errors {
		if e.Kind == internal.ErrDuplicateRemision {
			hasCollision = true
			continue
		}
		if !e.Recoverable {
			return false
		}
	}
	return hasCollision
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
