package gameserver

import (
	"fmt"
	"strings"
)

// GameType selects which emitter implementation speaks to a server
type GameType string

const (
	GameTypeMock           GameType = "MOCK"
	GameTypeRust           GameType = "RUST"
	GameTypeSevenDaysToDie GameType = "SEVENDAYSTODIE"
)

// ParseGameType normalizes user input. Unknown values are returned as-is so
// the emitter registry can reject them with a not-implemented error.
func ParseGameType(s string) GameType {
	return GameType(strings.ToUpper(strings.TrimSpace(s)))
}

func (t GameType) String() string {
	return string(t)
}

// Validate reports whether the type is one of the known enum values
func (t GameType) Validate() error {
	switch t {
	case GameTypeMock, GameTypeRust, GameTypeSevenDaysToDie:
		return nil
	default:
		return fmt.Errorf("unknown game type %q", string(t))
	}
}
