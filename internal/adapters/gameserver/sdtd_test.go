package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestParseSdtdData(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		msg        string
		wantExtra  gameserver.EventType
		wantPlayer string
		wantMsg    string
	}{
		{
			name:       "global chat",
			msg:        `Chat (from 'Steam_76561198000000001', entity id '171', to 'Global'): 'alice': /ping`,
			wantExtra:  gameserver.EventChatMessage,
			wantPlayer: "alice",
			wantMsg:    "/ping",
		},
		{
			name:       "spawn after join",
			msg:        `PlayerSpawnedInWorld (reason: JoinMultiplayer, position: -1450, 61, 430): EntityID=171, PltfmId='Steam_76561198000000001', CrossId='EOS_0002', OwnerID='Steam_76561198000000001', PlayerName='alice'`,
			wantExtra:  gameserver.EventPlayerConnected,
			wantPlayer: "alice",
			wantMsg:    "alice connected",
		},
		{
			name:       "disconnect",
			msg:        `Player disconnected: EntityID=171, PltfmId='Steam_76561198000000001', CrossId='EOS_0002', OwnerID='Steam_76561198000000001', PlayerName='alice'`,
			wantExtra:  gameserver.EventPlayerDisconnected,
			wantPlayer: "alice",
			wantMsg:    "alice disconnected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(sdtdLogEntry{Msg: tt.msg, Type: "Log"})
			require.NoError(t, err)

			events := parseSdtdData(string(data), at)

			require.Len(t, events, 2)
			assert.Equal(t, gameserver.EventLogLine, events[0].Type)
			assert.Equal(t, tt.wantExtra, events[1].Type)
			assert.Equal(t, tt.wantPlayer, events[1].Player.Name)
			assert.Equal(t, "76561198000000001", events[1].Player.SteamID)
			assert.Equal(t, tt.wantMsg, events[1].Msg)
		})
	}
}

func TestParseSdtdData_ServerConsoleChatIsOnlyALogLine(t *testing.T) {
	events := parseSdtdData(`Chat (from '-non-player-', entity id '-1', to 'Global'): 'Server': hello`, time.Now())

	require.Len(t, events, 1)
	assert.Equal(t, gameserver.EventLogLine, events[0].Type)
}

func TestReadSSE_JoinsMultilineData(t *testing.T) {
	stream := "event: logLine\ndata: first\ndata: second\n\n: comment\ndata: third\n\n"
	var got []string

	err := readSSE(strings.NewReader(stream), func(data string) { got = append(got, data) })

	require.NoError(t, err)
	assert.Equal(t, []string{"first\nsecond", "third"}, got)
}

func TestSdtdEmitter_StreamsEvents(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-SDTD-API-SECRET") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: {\"msg\":\"Chat (from 'Steam_1', entity id '171', to 'Global'): 'alice': hi\",\"type\":\"Log\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	info := json.RawMessage(fmt.Sprintf(`{"host":%q,"adminUser":"admin","adminToken":"secret"}`, host))
	em, err := NewSdtdEmitter(info, shared.NewRealClock(), discardLogger())
	require.NoError(t, err)
	chats := make(chan gameserver.Event, 1)
	em.On(gameserver.EventChatMessage, func(ev gameserver.Event) { chats <- ev })

	// Act
	require.NoError(t, em.Start(context.Background()))

	// Assert
	select {
	case ev := <-chats:
		assert.Equal(t, "hi", ev.Msg)
		assert.Equal(t, "171", ev.Player.GameID)
	case <-time.After(2 * time.Second):
		t.Fatal("no chat event")
	}
	require.NoError(t, em.Stop(context.Background()))
}

func TestSdtdEmitter_BadCredentialsFailStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	info := json.RawMessage(fmt.Sprintf(`{"host":%q,"adminUser":"admin","adminToken":"wrong"}`, host))
	em, err := NewSdtdEmitter(info, shared.NewRealClock(), discardLogger())
	require.NoError(t, err)

	err = em.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
