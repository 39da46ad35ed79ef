package queue

import (
	"github.com/andrescamacho/takaro-connector/internal/domain/function"
	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
)

// Name identifies one of the fixed queues
type Name string

const (
	Events    Name = "events"
	Commands  Name = "commands"
	CronJobs  Name = "cronjobs"
	Hooks     Name = "hooks"
	Connector Name = "connector"
)

// Names lists every queue the fabric owns
var Names = []Name{Events, Commands, CronJobs, Hooks, Connector}

// ExecutionQueueFor maps a trigger kind to the queue its jobs run on
func ExecutionQueueFor(kind function.ItemKind) Name {
	switch kind {
	case function.ItemKindCronJob:
		return CronJobs
	case function.ItemKindHook:
		return Hooks
	default:
		return Commands
	}
}

// EventJob is a game event forwarded by the connection manager
type EventJob struct {
	ID           string               `json:"id"`
	Type         gameserver.EventType `json:"type"`
	Event        gameserver.Event     `json:"event"`
	DomainID     string               `json:"domainId"`
	GameServerID string               `json:"gameServerId"`
}

// ExecutionJob is exactly one function invocation. Token is optional on
// enqueue; the execution worker obtains a fresh one when it is missing or
// expired. SourceID names what caused the job (an event job id or a cron
// tick) and keeps job ids stable when that source is delivered again.
type ExecutionJob struct {
	ID           string            `json:"id"`
	SourceID     string            `json:"sourceId,omitempty"`
	FunctionID   string            `json:"functionId"`
	DomainID     string            `json:"domainId"`
	GameServerID string            `json:"gameServerId"`
	ItemKind     function.ItemKind `json:"itemKind"`
	ItemID       string            `json:"itemId"`
	Token        string            `json:"token,omitempty"`
	Data         map[string]any    `json:"data"`
}

// ConnectorOperation is a connection lifecycle change request
type ConnectorOperation string

const (
	ConnectorAdd    ConnectorOperation = "add"
	ConnectorRemove ConnectorOperation = "remove"
	ConnectorUpdate ConnectorOperation = "update"
)

type ConnectorJob struct {
	ID           string             `json:"id"`
	Operation    ConnectorOperation `json:"operation"`
	DomainID     string             `json:"domainId"`
	GameServerID string             `json:"gameServerId"`
}
