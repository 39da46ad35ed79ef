// Package gameserver holds the emitter implementations for each supported
// game and the registry that picks one by game type.
package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Factory builds an emitter from decrypted connection info
type Factory func(connectionInfo json.RawMessage) (gameserver.Emitter, error)

// Registry implements gameserver.EmitterFactory
type Registry struct {
	mu        sync.RWMutex
	factories map[gameserver.GameType]Factory
}

// NewRegistry returns a registry with the MOCK, RUST and SEVENDAYSTODIE
// emitters registered.
func NewRegistry(clock shared.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Registry{factories: make(map[gameserver.GameType]Factory)}
	r.Register(gameserver.GameTypeMock, func(info json.RawMessage) (gameserver.Emitter, error) {
		return NewMockEmitter(info, clock)
	})
	r.Register(gameserver.GameTypeRust, func(info json.RawMessage) (gameserver.Emitter, error) {
		return NewRustEmitter(info, clock, logger.With("game", "rust"))
	})
	r.Register(gameserver.GameTypeSevenDaysToDie, func(info json.RawMessage) (gameserver.Emitter, error) {
		return NewSdtdEmitter(info, clock, logger.With("game", "7d2d"))
	})
	return r
}

// Register adds or replaces the factory for gameType
func (r *Registry) Register(gameType gameserver.GameType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gameType] = f
}

// New builds the emitter for gameType. Unknown types yield a NotImplementedError.
func (r *Registry) New(gameType gameserver.GameType, connectionInfo json.RawMessage) (gameserver.Emitter, error) {
	r.mu.RLock()
	f, ok := r.factories[gameType]
	r.mu.RUnlock()

	if !ok {
		return nil, shared.NewNotImplementedError(fmt.Sprintf("game type %s", gameType))
	}
	return f(connectionInfo)
}

var infoValidator = validator.New()

// decodeInfo unmarshals and validates game specific connection info
func decodeInfo(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return shared.NewValidationError("connectionInfo", err.Error())
	}
	if err := infoValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return shared.NewValidationError("connectionInfo."+verrs[0].Field(), fmt.Sprintf("failed %q check", verrs[0].Tag()))
		}
		return shared.NewValidationError("connectionInfo", err.Error())
	}
	return nil
}
