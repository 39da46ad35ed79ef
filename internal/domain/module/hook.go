package module

import (
	"fmt"
	"regexp"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Hook fires on game events of one type whose message matches Regex.
// An empty Regex matches every event of that type.
type Hook struct {
	ID        string
	ModuleID  string
	Name      string
	EventType gameserver.EventType
	Regex     string
}

// Matches reports whether ev should fire the hook
func (h *Hook) Matches(ev gameserver.Event) (bool, error) {
	if ev.Type != h.EventType {
		return false, nil
	}
	if h.Regex == "" {
		return true, nil
	}
	re, err := regexp.Compile(h.Regex)
	if err != nil {
		return false, shared.NewValidationError("regex", fmt.Sprintf("hook %s: %v", h.ID, err))
	}
	return re.MatchString(ev.Msg), nil
}

// CronJob fires on a five-field cron schedule
type CronJob struct {
	ID            string
	ModuleID      string
	Name          string
	TemporalValue string
}
