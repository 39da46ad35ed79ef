package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// GormEventRepository stores forwarded game events
type GormEventRepository struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormEventRepository creates a new GORM event repository
func NewGormEventRepository(db *gorm.DB, clock shared.Clock) *GormEventRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormEventRepository{db: db, clock: clock}
}

// Record inserts the event carried by job. A job id seen before is ignored.
func (r *GormEventRepository) Record(ctx context.Context, job queue.EventJob) error {
	meta, err := json.Marshal(job.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	model := &EventModel{
		ID:           job.ID,
		DomainID:     job.DomainID,
		GameServerID: job.GameServerID,
		EventType:    string(job.Type),
		Message:      job.Event.Msg,
		Meta:         string(meta),
		OccurredAt:   job.Event.Timestamp,
		CreatedAt:    r.clock.Now(),
	}
	if job.Event.Player != nil {
		model.PlayerGameID = job.Event.Player.GameID
		model.PlayerName = job.Event.Player.Name
	}
	if model.OccurredAt.IsZero() {
		model.OccurredAt = model.CreatedAt
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// CountByGameServer returns how many events a server produced
func (r *GormEventRepository) CountByGameServer(ctx context.Context, gameServerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EventModel{}).Where("gameserver_id = ?", gameServerID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
