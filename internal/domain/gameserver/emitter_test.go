package gameserver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventEmitter_DeliversOnlyToMatchingType(t *testing.T) {
	// Arrange
	var em EventEmitter
	var chats, logs []string
	em.On(EventChatMessage, func(ev Event) { chats = append(chats, ev.Msg) })
	em.On(EventLogLine, func(ev Event) { logs = append(logs, ev.Msg) })
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Act
	em.Emit(NewChatMessage(Player{GameID: "1", Name: "alice"}, "", "/ping", at))
	em.Emit(NewLogLine("server tick", at))
	em.Emit(NewLogLine("another", at))

	// Assert
	assert.Equal(t, []string{"/ping"}, chats)
	assert.Equal(t, []string{"server tick", "another"}, logs)
}

func TestEventEmitter_PreservesRegistrationOrder(t *testing.T) {
	var em EventEmitter
	var order []int
	em.On(EventLogLine, func(Event) { order = append(order, 1) })
	em.On(EventLogLine, func(Event) { order = append(order, 2) })

	em.Emit(NewLogLine("x", time.Now()))

	assert.Equal(t, []int{1, 2}, order)
}

func TestEventEmitter_ErrorsGoToErrorHandlersOnly(t *testing.T) {
	var em EventEmitter
	var got []error
	eventCalls := 0
	em.On(EventLogLine, func(Event) { eventCalls++ })
	em.OnError(func(err error) { got = append(got, err) })

	em.EmitError(errors.New("socket closed"))
	em.EmitError(nil)

	assert.Len(t, got, 1)
	assert.Equal(t, 0, eventCalls)
}

func TestNewChatMessage_DefaultsToGlobalChannel(t *testing.T) {
	ev := NewChatMessage(Player{GameID: "7"}, "", "hi", time.Now())

	assert.Equal(t, ChatChannelGlobal, ev.Channel)
	assert.Equal(t, "7", ev.Player.GameID)
}

func TestGameType_Validate(t *testing.T) {
	assert.NoError(t, ParseGameType(" rust ").Validate())
	assert.NoError(t, GameTypeMock.Validate())
	assert.Error(t, ParseGameType("minecraft").Validate())
}
