package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// RustConnectionInfo configures the RUST game type (WebRCON)
type RustConnectionInfo struct {
	Host         string `json:"host" validate:"required"`
	RconPort     int    `json:"rconPort" validate:"required,min=1,max=65535"`
	RconPassword string `json:"rconPassword" validate:"required"`
	UseTLS       bool   `json:"useTls"`
}

// rconFrame is one WebRCON message
type rconFrame struct {
	Message    string `json:"Message"`
	Identifier int    `json:"Identifier"`
	Type       string `json:"Type"`
	Stacktrace string `json:"Stacktrace,omitempty"`
}

// rustChat is the Message payload of a Chat frame
type rustChat struct {
	Channel  int    `json:"Channel"`
	Message  string `json:"Message"`
	UserID   string `json:"UserId"`
	Username string `json:"Username"`
}

var (
	rustJoined       = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):\d+/(\d+)/(.+?) joined \[`)
	rustDisconnected = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):\d+/(\d+)/(.+?) disconnecting: `)
)

// RustEmitter reads the WebRCON socket of a Rust server
type RustEmitter struct {
	gameserver.EventEmitter

	info   RustConnectionInfo
	clock  shared.Clock
	logger *slog.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

func NewRustEmitter(raw json.RawMessage, clock shared.Clock, logger *slog.Logger) (*RustEmitter, error) {
	var info RustConnectionInfo
	if err := decodeInfo(raw, &info); err != nil {
		return nil, err
	}
	return &RustEmitter{
		info:   info,
		clock:  clock,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (r *RustEmitter) url() string {
	scheme := "ws"
	if r.info.UseTLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   r.info.Host + ":" + strconv.Itoa(r.info.RconPort),
		Path:   "/" + url.PathEscape(r.info.RconPassword),
	}
	return u.String()
}

// Start dials the socket and begins reading in the background
func (r *RustEmitter) Start(ctx context.Context) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to rust webrcon at %s: %w", r.info.Host, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.closed = false
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.readLoop(conn, done)
	return nil
}

func (r *RustEmitter) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var frame rconFrame
		if err := conn.ReadJSON(&frame); err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				r.EmitError(fmt.Errorf("rust webrcon read failed: %w", err))
			}
			return
		}
		for _, ev := range parseRustFrame(frame, r.clock.Now()) {
			r.Emit(ev)
		}
	}
}

// Stop closes the socket and waits for the reader to exit
func (r *RustEmitter) Stop(ctx context.Context) error {
	r.mu.Lock()
	conn, done := r.conn, r.done
	r.closed = true
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if err := conn.Close(); err != nil {
		r.logger.Debug("closing webrcon socket", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRustFrame turns one WebRCON frame into events. Generic frames always
// yield a log line, plus a connect/disconnect event when recognised.
func parseRustFrame(frame rconFrame, at time.Time) []gameserver.Event {
	switch frame.Type {
	case "Chat":
		var chat rustChat
		if err := json.Unmarshal([]byte(frame.Message), &chat); err != nil {
			return []gameserver.Event{gameserver.NewLogLine(frame.Message, at)}
		}
		channel := gameserver.ChatChannelGlobal
		if chat.Channel == 1 {
			channel = gameserver.ChatChannelTeam
		}
		p := gameserver.Player{GameID: chat.UserID, Name: chat.Username, SteamID: chat.UserID}
		return []gameserver.Event{gameserver.NewChatMessage(p, channel, chat.Message, at)}

	case "Generic", "Log", "Warning", "Error":
		msg := strings.TrimSpace(frame.Message)
		if msg == "" {
			return nil
		}
		events := []gameserver.Event{gameserver.NewLogLine(msg, at)}
		if m := rustJoined.FindStringSubmatch(msg); m != nil {
			events = append(events, gameserver.NewPlayerConnected(gameserver.Player{IP: m[1], GameID: m[2], SteamID: m[2], Name: m[3]}, at))
		} else if m := rustDisconnected.FindStringSubmatch(msg); m != nil {
			events = append(events, gameserver.NewPlayerDisconnected(gameserver.Player{IP: m[1], GameID: m[2], SteamID: m[2], Name: m[3]}, at))
		}
		return events

	default:
		return nil
	}
}
