package connector

import (
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// Connection is the manager's record of one live emitter
type Connection struct {
	ID       string
	DomainID string
	GameType gameserver.GameType

	emitter   gameserver.Emitter
	lifecycle *shared.LifecycleStateMachine
}

func newConnection(server *gameserver.GameServer, emitter gameserver.Emitter, clock shared.Clock) *Connection {
	return &Connection{
		ID:        server.ID,
		DomainID:  server.DomainID,
		GameType:  server.Type,
		emitter:   emitter,
		lifecycle: shared.NewLifecycleStateMachine(clock),
	}
}

func (c *Connection) Status() shared.LifecycleStatus {
	return c.lifecycle.Status()
}

// LastError is the start or session failure, nil while healthy
func (c *Connection) LastError() error {
	return c.lifecycle.LastError()
}

func (c *Connection) Emitter() gameserver.Emitter {
	return c.emitter
}

func (c *Connection) Uptime() time.Duration {
	return c.lifecycle.Uptime()
}

// Info is a point-in-time view of a connection
type Info struct {
	ID        string
	DomainID  string
	GameType  gameserver.GameType
	Status    shared.LifecycleStatus
	LastError string
	Uptime    time.Duration
}

func (c *Connection) Info() Info {
	info := Info{
		ID:       c.ID,
		DomainID: c.DomainID,
		GameType: c.GameType,
		Status:   c.Status(),
		Uptime:   c.Uptime(),
	}
	if err := c.LastError(); err != nil {
		info.LastError = err.Error()
	}
	return info
}
