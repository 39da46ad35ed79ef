package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// ErrNotRunning is returned when events are injected into a stopped mock
var ErrNotRunning = errors.New("emitter not running")

// MockConnectionInfo configures the MOCK game type
type MockConnectionInfo struct {
	// EventInterval, when set, makes the mock emit a log line on every tick
	EventInterval string `json:"eventInterval"`
	// FailStart makes Start return an error, for exercising failed connections
	FailStart bool `json:"failStart"`
}

// MockEmitter is an in-memory game server. Tests and the chat CLI inject
// events into it directly.
type MockEmitter struct {
	gameserver.EventEmitter

	info     MockConnectionInfo
	interval time.Duration
	clock    shared.Clock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMockEmitter(raw json.RawMessage, clock shared.Clock) (*MockEmitter, error) {
	var info MockConnectionInfo
	if err := decodeInfo(raw, &info); err != nil {
		return nil, err
	}

	var interval time.Duration
	if info.EventInterval != "" {
		d, err := time.ParseDuration(info.EventInterval)
		if err != nil || d <= 0 {
			return nil, shared.NewValidationError("connectionInfo.eventInterval", fmt.Sprintf("invalid duration %q", info.EventInterval))
		}
		interval = d
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &MockEmitter{info: info, interval: interval, clock: clock}, nil
}

func (m *MockEmitter) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.info.FailStart {
		return fmt.Errorf("mock server refused connection")
	}
	if m.running {
		return nil
	}
	m.running = true

	if m.interval > 0 {
		tickCtx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.tick(tickCtx, m.done)
	}
	return nil
}

func (m *MockEmitter) tick(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			m.Emit(gameserver.NewLogLine(fmt.Sprintf("mock tick %d", n), m.clock.Now()))
		}
	}
}

func (m *MockEmitter) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockEmitter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Inject emits ev as if the game had produced it
func (m *MockEmitter) Inject(ev gameserver.Event) error {
	if !m.Running() {
		return ErrNotRunning
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.clock.Now()
	}
	m.Emit(ev)
	return nil
}

// Chat injects a global chat message from p
func (m *MockEmitter) Chat(p gameserver.Player, msg string) error {
	return m.Inject(gameserver.NewChatMessage(p, gameserver.ChatChannelGlobal, msg, m.clock.Now()))
}

// Fail reports err on the error channel
func (m *MockEmitter) Fail(err error) {
	m.EmitError(err)
}
