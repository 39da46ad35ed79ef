package gameserver

import (
	"context"
	"encoding/json"
)

// EmitterFactory builds the emitter matching a game type
type EmitterFactory interface {
	New(gameType GameType, connectionInfo json.RawMessage) (Emitter, error)
}

// ConfigSource is the read side the connection manager bootstraps from
type ConfigSource interface {
	// ListDomains returns every domain id that owns at least one server
	ListDomains(ctx context.Context) ([]string, error)

	// ListByDomain returns the servers of a domain without decrypting secrets
	ListByDomain(ctx context.Context, domainID string) ([]*GameServer, error)

	// Get returns one server with decrypted connection info
	Get(ctx context.Context, domainID, gameServerID string) (*GameServer, error)
}

// Repository persists game server registrations
type Repository interface {
	ConfigSource

	Save(ctx context.Context, server *GameServer) error
	Delete(ctx context.Context, domainID, gameServerID string) error
}

// SettingsRepository stores per-server key/value settings
type SettingsRepository interface {
	GetSetting(ctx context.Context, gameServerID, key string) (string, bool, error)
	SetSetting(ctx context.Context, gameServerID, key, value string) error
}
