package module

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/buildkite/shellwords"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// DefaultCommandPrefix is used when neither the server nor the config sets one
const DefaultCommandPrefix = "/"

type ArgumentType string

const (
	ArgumentTypeString  ArgumentType = "string"
	ArgumentTypeNumber  ArgumentType = "number"
	ArgumentTypeBoolean ArgumentType = "boolean"
)

// Argument is one declared positional command argument
type Argument struct {
	Name         string
	Type         ArgumentType
	Position     int
	DefaultValue *string
	HelpText     string
}

// Command is a chat trigger definition. Trigger words are unique per module.
type Command struct {
	ID        string
	ModuleID  string
	Name      string
	Trigger   string
	HelpText  string
	Enabled   bool
	Arguments []Argument
}

// SplitChatCommand checks msg for an exact leading prefix and splits the
// remainder into the trigger word and the raw argument text.
func SplitChatCommand(msg, prefix string) (trigger, rest string, ok bool) {
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	if !strings.HasPrefix(msg, prefix) {
		return "", "", false
	}
	body := msg[len(prefix):]
	end := strings.IndexFunc(body, unicode.IsSpace)
	if end < 0 {
		return body, "", body != ""
	}
	return body[:end], strings.TrimSpace(body[end:]), end > 0
}

// MatchesTrigger compares trigger words case-insensitively
func (c *Command) MatchesTrigger(trigger string) bool {
	return strings.EqualFold(c.Trigger, trigger)
}

// ParseArguments tokenizes raw with POSIX quoting and coerces each token into
// the declared argument at the same position. Surplus tokens are appended to
// a trailing string argument.
func (c *Command) ParseArguments(raw string) (map[string]any, error) {
	tokens, err := shellwords.SplitPosix(raw)
	if err != nil {
		return nil, shared.NewValidationError("arguments", fmt.Sprintf("cannot tokenize %q: %v", raw, err))
	}

	args := make([]Argument, len(c.Arguments))
	copy(args, c.Arguments)
	sort.SliceStable(args, func(i, j int) bool { return args[i].Position < args[j].Position })

	if n := len(args); n > 0 && len(tokens) > n && args[n-1].Type == ArgumentTypeString {
		tail := strings.Join(tokens[n-1:], " ")
		tokens = append(tokens[:n-1], tail)
	}

	parsed := make(map[string]any, len(args))
	for i, arg := range args {
		var value string
		switch {
		case i < len(tokens):
			value = tokens[i]
		case arg.DefaultValue != nil:
			value = *arg.DefaultValue
		default:
			return nil, shared.NewValidationError(arg.Name, "missing required argument")
		}

		v, err := coerce(arg, value)
		if err != nil {
			return nil, err
		}
		parsed[arg.Name] = v
	}
	return parsed, nil
}

func coerce(arg Argument, value string) (any, error) {
	switch arg.Type {
	case ArgumentTypeString, "":
		return value, nil
	case ArgumentTypeNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, shared.NewValidationError(arg.Name, fmt.Sprintf("%q is not a number", value))
		}
		return n, nil
	case ArgumentTypeBoolean:
		switch strings.ToLower(value) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return nil, shared.NewValidationError(arg.Name, fmt.Sprintf("%q is not a boolean", value))
	default:
		return nil, shared.NewValidationError(arg.Name, fmt.Sprintf("unsupported argument type %q", arg.Type))
	}
}
