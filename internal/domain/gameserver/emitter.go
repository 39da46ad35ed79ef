package gameserver

import (
	"context"
	"sync"
)

type EventHandler func(Event)

type ErrorHandler func(error)

// Emitter is a live adapter translating one game's wire protocol into the
// event vocabulary. Only the connection manager calls Start and Stop.
type Emitter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	On(eventType EventType, handler EventHandler)
	// OnError handlers hear about failures that end the session
	OnError(handler ErrorHandler)
}

// EventEmitter is the listener table shared by emitter implementations.
// Embed it and call Emit/EmitError from the protocol loop.
type EventEmitter struct {
	mu            sync.RWMutex
	handlers      map[EventType][]EventHandler
	errorHandlers []ErrorHandler
}

func (e *EventEmitter) On(eventType EventType, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventType][]EventHandler)
	}
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

func (e *EventEmitter) OnError(handler ErrorHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHandlers = append(e.errorHandlers, handler)
}

// Emit delivers ev to every handler registered for its type, in registration order
func (e *EventEmitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers[ev.Type]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (e *EventEmitter) EmitError(err error) {
	if err == nil {
		return
	}
	e.mu.RLock()
	handlers := append([]ErrorHandler(nil), e.errorHandlers...)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}
