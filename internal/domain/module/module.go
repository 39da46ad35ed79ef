package module

import (
	"encoding/json"
	"time"
)

// Module groups the triggers that are installed onto a game server together
type Module struct {
	ID           string
	Name         string
	Description  string
	ConfigSchema json.RawMessage
	Commands     []*Command
	Hooks        []*Hook
	CronJobs     []*CronJob
	CreatedAt    time.Time
}

// Installation binds a module to one game server with the operator's config
type Installation struct {
	ID           string
	ModuleID     string
	GameServerID string
	DomainID     string
	UserConfig   json.RawMessage
	CreatedAt    time.Time
}

// Ref is the module reference handed to executed functions
type Ref struct {
	ModuleID       string          `json:"moduleId"`
	InstallationID string          `json:"installationId"`
	UserConfig     json.RawMessage `json:"userConfig,omitempty"`
}

func (i *Installation) Ref() Ref {
	cfg := i.UserConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	return Ref{ModuleID: i.ModuleID, InstallationID: i.ID, UserConfig: cfg}
}
