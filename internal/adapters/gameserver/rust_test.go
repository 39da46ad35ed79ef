package gameserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

func TestParseRustFrame(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("chat", func(t *testing.T) {
		payload := `{"Channel":1,"Message":"/tp home","UserId":"76561198000000001","Username":"alice"}`
		events := parseRustFrame(rconFrame{Type: "Chat", Message: payload}, at)

		require.Len(t, events, 1)
		assert.Equal(t, gameserver.EventChatMessage, events[0].Type)
		assert.Equal(t, "/tp home", events[0].Msg)
		assert.Equal(t, gameserver.ChatChannelTeam, events[0].Channel)
		assert.Equal(t, "alice", events[0].Player.Name)
	})

	t.Run("join", func(t *testing.T) {
		events := parseRustFrame(rconFrame{Type: "Generic", Message: "10.0.0.7:61234/76561198000000001/alice joined [windows/76561198000000001]"}, at)

		require.Len(t, events, 2)
		assert.Equal(t, gameserver.EventLogLine, events[0].Type)
		assert.Equal(t, gameserver.EventPlayerConnected, events[1].Type)
		assert.Equal(t, "10.0.0.7", events[1].Player.IP)
		assert.Equal(t, "76561198000000001", events[1].Player.GameID)
	})

	t.Run("disconnect", func(t *testing.T) {
		events := parseRustFrame(rconFrame{Type: "Generic", Message: "10.0.0.7:61234/76561198000000001/alice disconnecting: closing"}, at)

		require.Len(t, events, 2)
		assert.Equal(t, gameserver.EventPlayerDisconnected, events[1].Type)
	})

	t.Run("unknown frame type", func(t *testing.T) {
		assert.Empty(t, parseRustFrame(rconFrame{Type: "Report", Message: "x"}, at))
	})
}

func TestRustEmitter_ReadsFramesFromSocket(t *testing.T) {
	// Arrange
	upgrader := websocket.Upgrader{}
	gotPath := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(rconFrame{Type: "Generic", Message: "Saving complete"})
		// Hold the socket open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	info, err := json.Marshal(RustConnectionInfo{Host: host, RconPort: p, RconPassword: "pw"})
	require.NoError(t, err)

	em, err := NewRustEmitter(info, shared.NewRealClock(), discardLogger())
	require.NoError(t, err)
	lines := make(chan string, 1)
	em.On(gameserver.EventLogLine, func(ev gameserver.Event) { lines <- ev.Msg })
	errs := make(chan error, 1)
	em.OnError(func(err error) { errs <- err })

	// Act
	require.NoError(t, em.Start(context.Background()))

	// Assert
	assert.Equal(t, "/pw", <-gotPath)
	select {
	case msg := <-lines:
		assert.Equal(t, "Saving complete", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no log line")
	}
	require.NoError(t, em.Stop(context.Background()))
	assert.Len(t, errs, 0, "a deliberate stop is not an error")
}

func TestRustEmitter_StartFailsWhenUnreachable(t *testing.T) {
	info := json.RawMessage(`{"host":"127.0.0.1","rconPort":1,"rconPassword":"pw"}`)
	em, err := NewRustEmitter(info, shared.NewRealClock(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, em.Start(ctx))
}
