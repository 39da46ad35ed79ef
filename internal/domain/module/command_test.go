package module

import (
	"errors"
	"testing"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChatCommand(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		prefix      string
		wantTrigger string
		wantRest    string
		wantOK      bool
	}{
		{"no prefix", "test", "/", "", "", false},
		{"prefix only", "/", "/", "", "", false},
		{"contains is not enough", "say /test", "/", "", "", false},
		{"bare trigger", "/test", "/", "test", "", true},
		{"trigger with args", "/tp home  now", "/", "tp", "home  now", true},
		{"custom prefix", "!ping", "!", "ping", "", true},
		{"default prefix when empty", "/ping", "", "ping", "", true},
		{"space after prefix", "/ ping", "/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, rest, ok := SplitChatCommand(tt.msg, tt.prefix)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTrigger, trigger)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestCommand_ParseArguments_CoercesByPosition(t *testing.T) {
	// Arrange
	cmd := &Command{
		Trigger: "give",
		Arguments: []Argument{
			{Name: "silent", Type: ArgumentTypeBoolean, Position: 2},
			{Name: "item", Type: ArgumentTypeString, Position: 0},
			{Name: "amount", Type: ArgumentTypeNumber, Position: 1},
		},
	}

	// Act
	args, err := cmd.ParseArguments(`"wood plank" 25 yes`)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "wood plank", args["item"])
	assert.Equal(t, 25.0, args["amount"])
	assert.Equal(t, true, args["silent"])
}

func TestCommand_ParseArguments_BadNumberIsValidationError(t *testing.T) {
	cmd := &Command{Arguments: []Argument{{Name: "amount", Type: ArgumentTypeNumber}}}

	for _, raw := range []string{"lots", "NaN", "nan", "Inf", "+Inf", "-Infinity", "0x10", "1e999"} {
		t.Run(raw, func(t *testing.T) {
			args, err := cmd.ParseArguments(raw)

			var verr *shared.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "amount", verr.Field)
			assert.Nil(t, args)
		})
	}
}

func TestCommand_ParseArguments_BadBooleanIsValidationError(t *testing.T) {
	cmd := &Command{Arguments: []Argument{{Name: "flag", Type: ArgumentTypeBoolean}}}

	_, err := cmd.ParseArguments("maybe")

	assert.Error(t, err)
}

func TestCommand_ParseArguments_DefaultsAndMissing(t *testing.T) {
	def := "1"
	cmd := &Command{Arguments: []Argument{
		{Name: "target", Type: ArgumentTypeString, Position: 0},
		{Name: "times", Type: ArgumentTypeNumber, Position: 1, DefaultValue: &def},
	}}

	args, err := cmd.ParseArguments("bob")
	require.NoError(t, err)
	assert.Equal(t, 1.0, args["times"])

	_, err = cmd.ParseArguments("")
	assert.Error(t, err, "target has no default")
}

func TestCommand_ParseArguments_SurplusJoinsTrailingString(t *testing.T) {
	cmd := &Command{Arguments: []Argument{
		{Name: "player", Type: ArgumentTypeString, Position: 0},
		{Name: "message", Type: ArgumentTypeString, Position: 1},
	}}

	args, err := cmd.ParseArguments("bob hello there friend")

	require.NoError(t, err)
	assert.Equal(t, "bob", args["player"])
	assert.Equal(t, "hello there friend", args["message"])
}

func TestCommand_MatchesTrigger(t *testing.T) {
	cmd := &Command{Trigger: "Ping"}

	assert.True(t, cmd.MatchesTrigger("ping"))
	assert.False(t, cmd.MatchesTrigger("pin"))
}

func TestHook_Matches(t *testing.T) {
	at := time.Now()
	hook := &Hook{ID: "h1", EventType: gameserver.EventLogLine, Regex: `^Saved \d+ chunks`}

	ok, err := hook.Matches(gameserver.NewLogLine("Saved 12 chunks", at))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hook.Matches(gameserver.NewLogLine("World saved", at))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = hook.Matches(gameserver.NewChatMessage(gameserver.Player{}, "", "Saved 1 chunks", at))
	require.NoError(t, err)
	assert.False(t, ok, "different event type")

	bad := &Hook{ID: "h2", EventType: gameserver.EventLogLine, Regex: "("}
	_, err = bad.Matches(gameserver.NewLogLine("x", at))
	assert.Error(t, err)
}

func TestInstallation_RefDefaultsEmptyConfig(t *testing.T) {
	inst := &Installation{ID: "i1", ModuleID: "m1"}

	ref := inst.Ref()

	assert.JSONEq(t, `{}`, string(ref.UserConfig))
	assert.Equal(t, "m1", ref.ModuleID)
}
