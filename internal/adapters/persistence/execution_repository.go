package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
)

// GormExecutionRepository implements execution.Repository using GORM
type GormExecutionRepository struct {
	db *gorm.DB
}

// NewGormExecutionRepository creates a new GORM execution repository
func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

// Exists reports whether a record for jobID was already stored
func (r *GormExecutionRepository) Exists(ctx context.Context, jobID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ExecutionModel{}).Where("job_id = ?", jobID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check execution %s: %w", jobID, err)
	}
	return count > 0, nil
}

// Save inserts rec unless its job id is already present
func (r *GormExecutionRepository) Save(ctx context.Context, rec *execution.Record) (bool, error) {
	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal logs: %w", err)
	}

	model := &ExecutionModel{
		JobID:        rec.JobID,
		FunctionID:   rec.FunctionID,
		DomainID:     rec.DomainID,
		GameServerID: rec.GameServerID,
		ItemKind:     string(rec.ItemKind),
		ItemID:       rec.ItemID,
		Success:      rec.Success,
		Logs:         string(logs),
		ArchiveKey:   rec.ArchiveKey,
		StartedAt:    rec.StartedAt,
		DurationMS:   rec.Duration.Milliseconds(),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save execution: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByFunction returns the most recent executions of a function
func (r *GormExecutionRepository) ListByFunction(ctx context.Context, functionID string, limit int) ([]*execution.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var models []ExecutionModel
	err := r.db.WithContext(ctx).
		Where("function_id = ?", functionID).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	records := make([]*execution.Record, 0, len(models))
	for i := range models {
		m := &models[i]
		var logs []execution.LogLine
		if m.Logs != "" {
			if err := json.Unmarshal([]byte(m.Logs), &logs); err != nil {
				return nil, fmt.Errorf("invalid logs for execution %s: %w", m.JobID, err)
			}
		}
		records = append(records, &execution.Record{
			JobID:        m.JobID,
			FunctionID:   m.FunctionID,
			DomainID:     m.DomainID,
			GameServerID: m.GameServerID,
			ItemKind:     function.ItemKind(m.ItemKind),
			ItemID:       m.ItemID,
			Success:      m.Success,
			Logs:         logs,
			ArchiveKey:   m.ArchiveKey,
			StartedAt:    m.StartedAt,
			Duration:     time.Duration(m.DurationMS) * time.Millisecond,
		})
	}
	return records, nil
}
