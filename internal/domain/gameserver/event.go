package gameserver

import "time"

// EventType is the fixed vocabulary every emitter produces
type EventType string

const (
	EventLogLine            EventType = "log"
	EventPlayerConnected    EventType = "player-connected"
	EventPlayerDisconnected EventType = "player-disconnected"
	EventChatMessage        EventType = "chat-message"
)

// ForwardedEventTypes lists the events the connection manager relays onto
// the events queue. Errors travel on a separate channel.
var ForwardedEventTypes = []EventType{
	EventLogLine,
	EventPlayerConnected,
	EventPlayerDisconnected,
	EventChatMessage,
}

// ChatChannel is the in-game audience of a chat message
type ChatChannel string

const (
	ChatChannelGlobal  ChatChannel = "global"
	ChatChannelTeam    ChatChannel = "team"
	ChatChannelWhisper ChatChannel = "whisper"
)

// Player identifies a player as reported by the game
type Player struct {
	GameID  string `json:"gameId"`
	Name    string `json:"name"`
	SteamID string `json:"steamId,omitempty"`
	IP      string `json:"ip,omitempty"`
}

// Event is an immutable game event value
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Msg       string      `json:"msg"`
	Player    *Player     `json:"player,omitempty"`
	Channel   ChatChannel `json:"channel,omitempty"`
}

func NewLogLine(msg string, at time.Time) Event {
	return Event{Type: EventLogLine, Timestamp: at, Msg: msg}
}

func NewPlayerConnected(p Player, at time.Time) Event {
	return Event{Type: EventPlayerConnected, Timestamp: at, Player: &p, Msg: p.Name + " connected"}
}

func NewPlayerDisconnected(p Player, at time.Time) Event {
	return Event{Type: EventPlayerDisconnected, Timestamp: at, Player: &p, Msg: p.Name + " disconnected"}
}

func NewChatMessage(p Player, channel ChatChannel, msg string, at time.Time) Event {
	if channel == "" {
		channel = ChatChannelGlobal
	}
	return Event{Type: EventChatMessage, Timestamp: at, Player: &p, Channel: channel, Msg: msg}
}
