package gameserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// SdtdConnectionInfo configures the SEVENDAYSTODIE game type (Alloc's web API)
type SdtdConnectionInfo struct {
	Host       string `json:"host" validate:"required,hostname_port"`
	AdminUser  string `json:"adminUser" validate:"required"`
	AdminToken string `json:"adminToken" validate:"required"`
	UseTLS     bool   `json:"useTls"`
}

// sdtdLogEntry is the data payload of one SSE log event
type sdtdLogEntry struct {
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

var (
	sdtdChat = regexp.MustCompile(`Chat \(from '([^']+)', entity id '([^']+)', to '([^']+)'\): '([^']+)':\s?(.*)$`)
	sdtdJoin = regexp.MustCompile(`PlayerSpawnedInWorld \(reason: (?:JoinMultiplayer|EnterMultiplayer), position: [^)]*\): EntityID=(-?\d+), PltfmId='([^']+)', CrossId='[^']*', OwnerID='[^']*', PlayerName='([^']+)'`)
	sdtdLeft = regexp.MustCompile(`Player disconnected: EntityID=(-?\d+), PltfmId='([^']+)', CrossId='[^']*', OwnerID='[^']*', PlayerName='([^']+)'`)
)

// SdtdEmitter follows the server-sent event log stream of a 7 Days to Die server
type SdtdEmitter struct {
	gameserver.EventEmitter

	info   SdtdConnectionInfo
	clock  shared.Clock
	logger *slog.Logger
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSdtdEmitter(raw json.RawMessage, clock shared.Clock, logger *slog.Logger) (*SdtdEmitter, error) {
	var info SdtdConnectionInfo
	if err := decodeInfo(raw, &info); err != nil {
		return nil, err
	}
	return &SdtdEmitter{info: info, clock: clock, logger: logger, client: &http.Client{}}, nil
}

func (s *SdtdEmitter) url() string {
	scheme := "http"
	if s.info.UseTLS {
		scheme = "https"
	}
	return scheme + "://" + s.info.Host + "/sse/log"
}

// Start opens the stream. The response status is checked before returning,
// so bad credentials fail the start.
func (s *SdtdEmitter) Start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.url(), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-SDTD-API-TOKENNAME", s.info.AdminUser)
	req.Header.Set("X-SDTD-API-SECRET", s.info.AdminToken)

	type result struct {
		resp *http.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := s.client.Do(req)
		ch <- result{resp, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
	if res.err != nil {
		cancel()
		return fmt.Errorf("failed to connect to 7d2d log stream at %s: %w", s.info.Host, res.err)
	}
	if res.resp.StatusCode != http.StatusOK {
		res.resp.Body.Close()
		cancel()
		return fmt.Errorf("7d2d log stream returned status %d", res.resp.StatusCode)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.readLoop(streamCtx, res.resp.Body, done)
	return nil
}

func (s *SdtdEmitter) readLoop(ctx context.Context, body io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer body.Close()

	err := readSSE(body, func(data string) {
		for _, ev := range parseSdtdData(data, s.clock.Now()) {
			s.Emit(ev)
		}
	})
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("stream closed by server")
	}
	s.EmitError(fmt.Errorf("7d2d log stream ended: %w", err))
}

func (s *SdtdEmitter) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

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

// readSSE calls onData with the joined data lines of every event in r
func readSSE(r io.Reader, onData func(data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				onData(strings.Join(data, "\n"))
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if len(data) > 0 {
		onData(strings.Join(data, "\n"))
	}
	return scanner.Err()
}

// parseSdtdData turns one log event into a log line plus any recognised
// chat or connection event.
func parseSdtdData(data string, at time.Time) []gameserver.Event {
	msg := data
	var entry sdtdLogEntry
	if err := json.Unmarshal([]byte(data), &entry); err == nil && entry.Msg != "" {
		msg = entry.Msg
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}

	events := []gameserver.Event{gameserver.NewLogLine(msg, at)}
	switch {
	case sdtdChat.MatchString(msg):
		m := sdtdChat.FindStringSubmatch(msg)
		// Messages from the server console have entity id -1
		if m[2] == "-1" {
			break
		}
		p := gameserver.Player{GameID: m[2], Name: m[4], SteamID: steamID(m[1])}
		events = append(events, gameserver.NewChatMessage(p, sdtdChannel(m[3]), m[5], at))
	case sdtdJoin.MatchString(msg):
		m := sdtdJoin.FindStringSubmatch(msg)
		events = append(events, gameserver.NewPlayerConnected(gameserver.Player{GameID: m[1], SteamID: steamID(m[2]), Name: m[3]}, at))
	case sdtdLeft.MatchString(msg):
		m := sdtdLeft.FindStringSubmatch(msg)
		events = append(events, gameserver.NewPlayerDisconnected(gameserver.Player{GameID: m[1], SteamID: steamID(m[2]), Name: m[3]}, at))
	}
	return events
}

func sdtdChannel(to string) gameserver.ChatChannel {
	switch strings.ToLower(to) {
	case "party", "friends":
		return gameserver.ChatChannelTeam
	case "global":
		return gameserver.ChatChannelGlobal
	default:
		return gameserver.ChatChannelWhisper
	}
}

// steamID strips the platform prefix of ids like Steam_7656119...
func steamID(platformID string) string {
	if id, ok := strings.CutPrefix(platformID, "Steam_"); ok {
		return id
	}
	return ""
}
