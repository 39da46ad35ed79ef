package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

func TestRegistry_UnknownTypeIsNotImplemented(t *testing.T) {
	r := NewRegistry(nil, nil)

	_, err := r.New(gameserver.GameType("MINECRAFT"), nil)

	var notImpl *shared.NotImplementedError
	require.True(t, errors.As(err, &notImpl))
	assert.Contains(t, notImpl.Feature, "MINECRAFT")
}

func TestRegistry_BuildsEachKnownType(t *testing.T) {
	r := NewRegistry(nil, nil)

	tests := []struct {
		gameType gameserver.GameType
		info     string
	}{
		{gameserver.GameTypeMock, `{}`},
		{gameserver.GameTypeRust, `{"host":"127.0.0.1","rconPort":28016,"rconPassword":"pw"}`},
		{gameserver.GameTypeSevenDaysToDie, `{"host":"127.0.0.1:8080","adminUser":"admin","adminToken":"secret"}`},
	}
	for _, tt := range tests {
		t.Run(tt.gameType.String(), func(t *testing.T) {
			em, err := r.New(tt.gameType, json.RawMessage(tt.info))
			require.NoError(t, err)
			assert.NotNil(t, em)
		})
	}
}

func TestRegistry_InvalidConnectionInfo(t *testing.T) {
	r := NewRegistry(nil, nil)

	_, err := r.New(gameserver.GameTypeRust, json.RawMessage(`{"rconPort":28016}`))

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "connectionInfo.Host", verr.Field)
}

func TestMockEmitter_InjectRequiresStart(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	em, err := NewMockEmitter(nil, clock)
	require.NoError(t, err)
	var got []gameserver.Event
	em.On(gameserver.EventChatMessage, func(ev gameserver.Event) { got = append(got, ev) })

	// Act & Assert
	assert.ErrorIs(t, em.Chat(gameserver.Player{GameID: "1", Name: "alice"}, "/ping"), ErrNotRunning)

	require.NoError(t, em.Start(context.Background()))
	require.NoError(t, em.Chat(gameserver.Player{GameID: "1", Name: "alice"}, "/ping"))
	require.NoError(t, em.Stop(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, "/ping", got[0].Msg)
	assert.Equal(t, clock.Now(), got[0].Timestamp)
	assert.False(t, em.Running())
}

func TestMockEmitter_FailStart(t *testing.T) {
	em, err := NewMockEmitter(json.RawMessage(`{"failStart":true}`), nil)
	require.NoError(t, err)

	assert.Error(t, em.Start(context.Background()))
	assert.False(t, em.Running())
}

func TestMockEmitter_TickerEmitsLogLines(t *testing.T) {
	em, err := NewMockEmitter(json.RawMessage(`{"eventInterval":"10ms"}`), nil)
	require.NoError(t, err)
	lines := make(chan gameserver.Event, 10)
	em.On(gameserver.EventLogLine, func(ev gameserver.Event) {
		select {
		case lines <- ev:
		default:
		}
	})

	require.NoError(t, em.Start(context.Background()))
	defer em.Stop(context.Background())

	select {
	case ev := <-lines:
		assert.Equal(t, "mock tick 1", ev.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
}

func TestMockEmitter_RejectsBadInterval(t *testing.T) {
	_, err := NewMockEmitter(json.RawMessage(`{"eventInterval":"soon"}`), nil)

	assert.Error(t, err)
}
