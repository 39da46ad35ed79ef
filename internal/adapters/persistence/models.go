package persistence

import (
	"time"
)

// Models lists every table for AutoMigrate, parents before children
func Models() []interface{} {
	return []interface{}{
		&GameServerModel{},
		&GameServerSettingModel{},
		&FunctionModel{},
		&ModuleModel{},
		&CommandModel{},
		&HookModel{},
		&CronJobModel{},
		&FunctionAssignmentModel{},
		&ModuleInstallationModel{},
		&EventModel{},
		&ExecutionModel{},
	}
}

// GameServerModel represents the gameservers table.
// ConnectionInfo holds the age-armored ciphertext, never plaintext.
type GameServerModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	DomainID       string    `gorm:"column:domain_id;not null;index"`
	Name           string    `gorm:"column:name;not null"`
	Type           string    `gorm:"column:type;not null"`
	ConnectionInfo string    `gorm:"column:connection_info;type:text;not null"`
	Enabled        bool      `gorm:"column:enabled;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (GameServerModel) TableName() string {
	return "gameservers"
}

// GameServerSettingModel represents the gameserver_settings table
type GameServerSettingModel struct {
	GameServerID string           `gorm:"column:gameserver_id;primaryKey"`
	GameServer   *GameServerModel `gorm:"foreignKey:GameServerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Key          string           `gorm:"column:setting_key;primaryKey"`
	Value        string           `gorm:"column:value;type:text;not null"`
}

func (GameServerSettingModel) TableName() string {
	return "gameserver_settings"
}

// FunctionModel represents the functions table
type FunctionModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	Code      string    `gorm:"column:code;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (FunctionModel) TableName() string {
	return "functions"
}

// ModuleModel represents the modules table
type ModuleModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;uniqueIndex;not null"`
	Description  string    `gorm:"column:description;type:text"`
	ConfigSchema string    `gorm:"column:config_schema;type:text"` // JSON schema as text
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (ModuleModel) TableName() string {
	return "modules"
}

// CommandModel represents the commands table. Trigger words are unique per module.
type CommandModel struct {
	ID          string       `gorm:"column:id;primaryKey"`
	ModuleID    string       `gorm:"column:module_id;not null;uniqueIndex:idx_commands_module_trigger"`
	Module      *ModuleModel `gorm:"foreignKey:ModuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name        string       `gorm:"column:name;not null"`
	TriggerWord string       `gorm:"column:trigger_word;not null;uniqueIndex:idx_commands_module_trigger"`
	HelpText    string       `gorm:"column:help_text;type:text"`
	Enabled     bool         `gorm:"column:enabled;not null"`
	Arguments   string       `gorm:"column:arguments;type:text"` // JSON array as text
}

func (CommandModel) TableName() string {
	return "commands"
}

// HookModel represents the hooks table
type HookModel struct {
	ID        string       `gorm:"column:id;primaryKey"`
	ModuleID  string       `gorm:"column:module_id;not null;index"`
	Module    *ModuleModel `gorm:"foreignKey:ModuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name      string       `gorm:"column:name;not null"`
	EventType string       `gorm:"column:event_type;not null;index"`
	Regex     string       `gorm:"column:regex"`
}

func (HookModel) TableName() string {
	return "hooks"
}

// CronJobModel represents the cronjobs table
type CronJobModel struct {
	ID            string       `gorm:"column:id;primaryKey"`
	ModuleID      string       `gorm:"column:module_id;not null;index"`
	Module        *ModuleModel `gorm:"foreignKey:ModuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Name          string       `gorm:"column:name;not null"`
	TemporalValue string       `gorm:"column:temporal_value;not null"`
}

func (CronJobModel) TableName() string {
	return "cronjobs"
}

// FunctionAssignmentModel represents the function_assignments table.
// Exactly one of CommandID, CronJobID and HookID is set; the check
// constraint backs up the validation done in the domain.
type FunctionAssignmentModel struct {
	ID         int            `gorm:"column:id;primaryKey;autoIncrement"`
	FunctionID string         `gorm:"column:function_id;not null;index"`
	Function   *FunctionModel `gorm:"foreignKey:FunctionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CommandID  *string        `gorm:"column:command_id;index;check:chk_function_assignments_one_owner,(CASE WHEN command_id IS NULL THEN 0 ELSE 1 END) + (CASE WHEN cron_job_id IS NULL THEN 0 ELSE 1 END) + (CASE WHEN hook_id IS NULL THEN 0 ELSE 1 END) = 1"`
	Command    *CommandModel  `gorm:"foreignKey:CommandID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CronJobID  *string        `gorm:"column:cron_job_id;index"`
	CronJob    *CronJobModel  `gorm:"foreignKey:CronJobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	HookID     *string        `gorm:"column:hook_id;index"`
	Hook       *HookModel     `gorm:"foreignKey:HookID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (FunctionAssignmentModel) TableName() string {
	return "function_assignments"
}

// ModuleInstallationModel represents the module_installations table
type ModuleInstallationModel struct {
	ID           string           `gorm:"column:id;primaryKey"`
	ModuleID     string           `gorm:"column:module_id;not null;uniqueIndex:idx_installations_server_module"`
	Module       *ModuleModel     `gorm:"foreignKey:ModuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	GameServerID string           `gorm:"column:gameserver_id;not null;uniqueIndex:idx_installations_server_module"`
	GameServer   *GameServerModel `gorm:"foreignKey:GameServerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	DomainID     string           `gorm:"column:domain_id;not null;index"`
	UserConfig   string           `gorm:"column:user_config;type:text"` // JSON as text
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
}

func (ModuleInstallationModel) TableName() string {
	return "module_installations"
}

// EventModel represents the events table. The id is the events-queue job id,
// so a redelivered job does not produce a second row.
type EventModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	DomainID     string    `gorm:"column:domain_id;not null;index"`
	GameServerID string    `gorm:"column:gameserver_id;not null;index"`
	EventType    string    `gorm:"column:event_type;not null;index"`
	PlayerGameID string    `gorm:"column:player_game_id"`
	PlayerName   string    `gorm:"column:player_name"`
	Message      string    `gorm:"column:message;type:text"`
	Meta         string    `gorm:"column:meta;type:text"` // full event JSON
	OccurredAt   time.Time `gorm:"column:occurred_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (EventModel) TableName() string {
	return "events"
}

// ExecutionModel represents the executions table, keyed by job id
type ExecutionModel struct {
	JobID        string    `gorm:"column:job_id;primaryKey"`
	FunctionID   string    `gorm:"column:function_id;not null;index"`
	DomainID     string    `gorm:"column:domain_id;not null;index"`
	GameServerID string    `gorm:"column:gameserver_id;not null"`
	ItemKind     string    `gorm:"column:item_kind;not null"`
	ItemID       string    `gorm:"column:item_id;not null"`
	Success      bool      `gorm:"column:success;not null"`
	Logs         string    `gorm:"column:logs;type:text"` // JSON array as text
	ArchiveKey   string    `gorm:"column:archive_key"`
	StartedAt    time.Time `gorm:"column:started_at;not null;index"`
	DurationMS   int64     `gorm:"column:duration_ms;not null"`
}

func (ExecutionModel) TableName() string {
	return "executions"
}
