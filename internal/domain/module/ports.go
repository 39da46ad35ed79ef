package module

import (
	"context"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
)

// InstalledCommand pairs a command with the installation that activated it
type InstalledCommand struct {
	Command      *Command
	Installation *Installation
}

type InstalledHook struct {
	Hook         *Hook
	Installation *Installation
}

type InstalledCronJob struct {
	CronJob      *CronJob
	Installation *Installation
}

// Repository persists modules, their triggers and installations
type Repository interface {
	Save(ctx context.Context, m *Module) error
	FindByID(ctx context.Context, id string) (*Module, error)

	Install(ctx context.Context, inst *Installation) error
	Uninstall(ctx context.Context, gameServerID, moduleID string) error

	// FindCommandsByTrigger returns enabled commands whose trigger equals
	// trigger case-insensitively, from modules installed on the server.
	FindCommandsByTrigger(ctx context.Context, gameServerID, trigger string) ([]InstalledCommand, error)

	// FindHooksByEventType returns hooks of installed modules listening to eventType
	FindHooksByEventType(ctx context.Context, gameServerID string, eventType gameserver.EventType) ([]InstalledHook, error)

	// ListInstalledCronJobs returns every cron job of every installation
	ListInstalledCronJobs(ctx context.Context) ([]InstalledCronJob, error)
}
