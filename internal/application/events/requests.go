package events

import (
	"context"
	"fmt"

	"github.com/andrescamacho/takaro-connector/internal/application/command"
	"github.com/andrescamacho/takaro-connector/internal/application/common"
	"github.com/andrescamacho/takaro-connector/internal/application/hook"
	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// MatchCommandsRequest asks command matching to handle a chat message
type MatchCommandsRequest struct {
	Job queue.EventJob
}

// MatchHooksRequest asks hook matching to handle any forwarded event
type MatchHooksRequest struct {
	Job queue.EventJob
}

// MatchResponse reports how many execution jobs a match enqueued
type MatchResponse struct {
	Enqueued int
}

// RegisterHandlers binds the matching services to the mediator
func RegisterHandlers(m common.Mediator, commands *command.Service, hooks *hook.Service) error {
	err := common.RegisterHandler[*MatchCommandsRequest](m, common.HandlerFunc(func(ctx context.Context, request common.Request) (common.Response, error) {
		req, ok := request.(*MatchCommandsRequest)
		if !ok {
			return nil, fmt.Errorf("invalid request type: expected *MatchCommandsRequest")
		}
		n, err := commands.HandleChatMessage(ctx, req.Job)
		return &MatchResponse{Enqueued: n}, err
	}))
	if err != nil {
		return err
	}

	return common.RegisterHandler[*MatchHooksRequest](m, common.HandlerFunc(func(ctx context.Context, request common.Request) (common.Response, error) {
		req, ok := request.(*MatchHooksRequest)
		if !ok {
			return nil, fmt.Errorf("invalid request type: expected *MatchHooksRequest")
		}
		n, err := hooks.HandleEvent(ctx, req.Job)
		return &MatchResponse{Enqueued: n}, err
	}))
}
