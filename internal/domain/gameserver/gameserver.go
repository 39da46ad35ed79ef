package gameserver

import (
	"encoding/json"
	"time"
)

// SettingCommandPrefix is the per-server override of the chat command prefix
const SettingCommandPrefix = "commandPrefix"

// GameServer is a managed server registration inside a domain.
// ConnectionInfo holds decrypted, game-specific connection parameters and is
// only populated when the server was fetched individually.
type GameServer struct {
	ID             string
	DomainID       string
	Name           string
	Type           GameType
	ConnectionInfo json.RawMessage
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasConnectionInfo reports whether secrets were loaded for this instance
func (g *GameServer) HasConnectionInfo() bool {
	return len(g.ConnectionInfo) > 0
}
