package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Sealer encrypts connection secrets before they reach the database
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(ciphertext string) ([]byte, error)
}

// GormGameServerRepository implements gameserver.Repository and
// gameserver.SettingsRepository using GORM
type GormGameServerRepository struct {
	db     *gorm.DB
	sealer Sealer
	clock  shared.Clock
}

// NewGormGameServerRepository creates a new GORM game server repository
func NewGormGameServerRepository(db *gorm.DB, sealer Sealer, clock shared.Clock) *GormGameServerRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormGameServerRepository{db: db, sealer: sealer, clock: clock}
}

// ListDomains returns the distinct domains owning enabled servers
func (r *GormGameServerRepository) ListDomains(ctx context.Context) ([]string, error) {
	var domains []string
	err := r.db.WithContext(ctx).
		Model(&GameServerModel{}).
		Where("enabled = ?", true).
		Distinct().
		Order("domain_id").
		Pluck("domain_id", &domains).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return domains, nil
}

// ListByDomain returns enabled servers of a domain. Secrets are not selected.
func (r *GormGameServerRepository) ListByDomain(ctx context.Context, domainID string) ([]*gameserver.GameServer, error) {
	var models []GameServerModel
	err := r.db.WithContext(ctx).
		Omit("connection_info").
		Where("domain_id = ? AND enabled = ?", domainID, true).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list game servers: %w", err)
	}

	servers := make([]*gameserver.GameServer, 0, len(models))
	for i := range models {
		servers = append(servers, modelToGameServer(&models[i]))
	}
	return servers, nil
}

// Get returns one server with decrypted connection info
func (r *GormGameServerRepository) Get(ctx context.Context, domainID, gameServerID string) (*gameserver.GameServer, error) {
	var model GameServerModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND domain_id = ?", gameServerID, domainID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("gameserver", gameServerID)
		}
		return nil, fmt.Errorf("failed to find game server: %w", err)
	}

	server := modelToGameServer(&model)
	plaintext, err := r.sealer.Open(model.ConnectionInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt connection info for %s: %w", gameServerID, err)
	}
	server.ConnectionInfo = plaintext
	return server, nil
}

// Save creates or updates a server, sealing its connection info
func (r *GormGameServerRepository) Save(ctx context.Context, server *gameserver.GameServer) error {
	sealed, err := r.sealer.Seal(server.ConnectionInfo)
	if err != nil {
		return fmt.Errorf("failed to encrypt connection info: %w", err)
	}

	now := r.clock.Now()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	server.UpdatedAt = now

	model := &GameServerModel{
		ID:             server.ID,
		DomainID:       server.DomainID,
		Name:           server.Name,
		Type:           string(server.Type),
		ConnectionInfo: sealed,
		Enabled:        server.Enabled,
		CreatedAt:      server.CreatedAt,
		UpdatedAt:      server.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save game server: %w", err)
	}
	return nil
}

// Delete removes a server; settings and installations cascade
func (r *GormGameServerRepository) Delete(ctx context.Context, domainID, gameServerID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND domain_id = ?", gameServerID, domainID).
		Delete(&GameServerModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete game server: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("gameserver", gameServerID)
	}
	return nil
}

// GetSetting returns a server setting and whether it was set
func (r *GormGameServerRepository) GetSetting(ctx context.Context, gameServerID, key string) (string, bool, error) {
	var model GameServerSettingModel
	err := r.db.WithContext(ctx).
		Where("gameserver_id = ? AND setting_key = ?", gameServerID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return model.Value, true, nil
}

// SetSetting upserts a server setting
func (r *GormGameServerRepository) SetSetting(ctx context.Context, gameServerID, key, value string) error {
	model := &GameServerSettingModel{GameServerID: gameServerID, Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gameserver_id"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func modelToGameServer(model *GameServerModel) *gameserver.GameServer {
	return &gameserver.GameServer{
		ID:        model.ID,
		DomainID:  model.DomainID,
		Name:      model.Name,
		Type:      gameserver.GameType(model.Type),
		Enabled:   model.Enabled,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
