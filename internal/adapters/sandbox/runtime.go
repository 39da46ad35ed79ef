package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lua "github.com/Shopify/go-lua"

	"github.com/andrescamacho/takaro-connector/internal/adapters/api"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// DefaultMaxLogLines bounds captured output when no limit is configured
const DefaultMaxLogLines = 1000

// hookInstructionCount is how many VM instructions run between ctx checks
const hookInstructionCount = 1000

var errTimedOut = errors.New("execution timed out")

// Platform is the API surface exposed to user code through getTakaro
type Platform interface {
	SendMessage(ctx context.Context, token, gameServerID, msg, recipientGameID string) error
	ExecuteCommand(ctx context.Context, token, gameServerID, command string) (*api.CommandResult, error)
	GiveItem(ctx context.Context, token, gameServerID, playerGameID, item string, amount int) error
	ListPlayers(ctx context.Context, token, gameServerID string) ([]gameserver.Player, error)
	GetVariable(ctx context.Context, token string, v api.Variable) (*api.Variable, error)
	SetVariable(ctx context.Context, token string, v api.Variable) error
}

// logBuffer collects print output. It is read by the runner while the VM
// may still be writing after a timeout.
type logBuffer struct {
	mu      sync.Mutex
	lines   []execution.LogLine
	max     int
	dropped int
}

func (b *logBuffer) add(level execution.LogLevel, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.max {
		b.dropped++
		return
	}
	b.lines = append(b.lines, execution.LogLine{Level: level, Msg: msg})
}

func (b *logBuffer) snapshot() []execution.LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]execution.LogLine, len(b.lines), len(b.lines)+1)
	copy(out, b.lines)
	if b.dropped > 0 {
		out = append(out, execution.LogLine{
			Level: execution.LogLevelInfo,
			Msg:   fmt.Sprintf("%d log lines omitted", b.dropped),
		})
	}
	return out
}

// session is one VM evaluation of one request
type session struct {
	ctx        context.Context
	platform   Platform
	data       map[string]any
	token      string
	logs       *logBuffer
	unresolved string
}

// Evaluate runs code against data in a fresh restricted Lua state. Lua
// errors are captured into the result; only an unresolved require is
// returned as an error.
func Evaluate(ctx context.Context, code string, data map[string]any, platform Platform, maxLogLines int) (*execution.Result, error) {
	s := newSession(ctx, data, platform, maxLogLines)
	return s.run(code)
}

func newSession(ctx context.Context, data map[string]any, platform Platform, maxLogLines int) *session {
	if maxLogLines <= 0 {
		maxLogLines = DefaultMaxLogLines
	}
	token, _ := data["token"].(string)
	return &session{
		ctx:      ctx,
		platform: platform,
		data:     data,
		token:    token,
		logs:     &logBuffer{max: maxLogLines},
	}
}

func (s *session) run(code string) (*execution.Result, error) {
	if err := CheckImports(code); err != nil {
		return nil, err
	}

	l := s.newState()
	if err := lua.LoadBuffer(l, code, "=function", ""); err != nil {
		return execution.Failed(s.logs.snapshot(), fmt.Errorf("syntax error: %s", luaMessage(l, err))), nil
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		if s.unresolved != "" {
			return nil, shared.NewUnresolvedDependencyError(s.unresolved)
		}
		if s.ctx.Err() != nil {
			return execution.Failed(s.logs.snapshot(), errTimedOut), nil
		}
		return execution.Failed(s.logs.snapshot(), errors.New(luaMessage(l, err))), nil
	}
	return &execution.Result{Logs: s.logs.snapshot(), Success: true}, nil
}

// luaMessage prefers the error value left on the stack over err's text
func luaMessage(l *lua.State, err error) string {
	if l.Top() > 0 && l.TypeOf(-1) == lua.TypeString {
		msg, _ := l.ToString(-1)
		return msg
	}
	return err.Error()
}

func (s *session) newState() *lua.State {
	l := lua.NewState()
	for _, lib := range []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	} {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "xpcall"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Register("print", s.print)
	l.Register("pcall", s.pcall)
	l.Register("require", s.require)

	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		if s.ctx.Err() != nil {
			lua.Errorf(l, "%s", errTimedOut.Error())
		}
	}, lua.MaskCount, hookInstructionCount)
	return l
}

func (s *session) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, displayValue(l, i))
	}
	s.logs.add(execution.LogLevelInfo, strings.Join(parts, "\t"))
	return 0
}

// pcall behaves like the base library version except that a timeout cannot
// be swallowed by user code.
func (s *session) pcall(l *lua.State) int {
	lua.CheckAny(l, 1)
	err := l.ProtectedCall(l.Top()-1, lua.MultipleReturns, 0)
	if s.unresolved != "" {
		lua.Errorf(l, "%s", shared.NewUnresolvedDependencyError(s.unresolved).Error())
	}
	if s.ctx.Err() != nil {
		lua.Errorf(l, "%s", errTimedOut.Error())
	}
	if err != nil {
		l.PushBoolean(false)
		l.Insert(-2)
		return 2
	}
	l.PushBoolean(true)
	l.Insert(1)
	return l.Top()
}

func (s *session) require(l *lua.State) int {
	name := lua.CheckString(l, 1)
	if !isHelperModule(name) {
		s.unresolved = name
		lua.Errorf(l, "%s", shared.NewUnresolvedDependencyError(name).Error())
		return 0
	}
	s.pushHelpers(l)
	return 1
}
