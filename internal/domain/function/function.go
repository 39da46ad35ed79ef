package function

import (
	"strings"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Function is a blob of user-authored code run in the sandbox when one of
// its triggers fires.
type Function struct {
	ID        string
	Name      string
	Code      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewFunction(id, name, code string, clock shared.Clock) (*Function, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewValidationError("id", "must not be empty")
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	now := clock.Now()
	return &Function{ID: id, Name: name, Code: code, CreatedAt: now, UpdatedAt: now}, nil
}
