package shared

import (
	"fmt"
	"sync"
	"time"
)

// LifecycleStatus represents the state of a long-lived resource such as a
// game server connection.
type LifecycleStatus string

const (
	// LifecycleStatusConnecting indicates start has been requested but not confirmed
	LifecycleStatusConnecting LifecycleStatus = "CONNECTING"

	// LifecycleStatusConnected indicates the resource is live
	LifecycleStatusConnected LifecycleStatus = "CONNECTED"

	// LifecycleStatusFailed indicates start or the live session failed
	LifecycleStatusFailed LifecycleStatus = "FAILED"

	// LifecycleStatusStopped indicates the resource was stopped deliberately
	LifecycleStatusStopped LifecycleStatus = "STOPPED"
)

// LifecycleStateMachine tracks CONNECTING → CONNECTED/FAILED → STOPPED.
//
// Invariants:
// - STOPPED is terminal
// - a FAILED resource may still be stopped, so its owner can clean up
// - timestamps come from the injected Clock
type LifecycleStateMachine struct {
	mu        sync.RWMutex
	status    LifecycleStatus
	createdAt time.Time
	updatedAt time.Time
	startedAt *time.Time
	stoppedAt *time.Time
	lastError error
	clock     Clock
}

// NewLifecycleStateMachine creates a state machine in CONNECTING state
func NewLifecycleStateMachine(clock Clock) *LifecycleStateMachine {
	if clock == nil {
		clock = NewRealClock()
	}

	now := clock.Now()
	return &LifecycleStateMachine{
		status:    LifecycleStatusConnecting,
		createdAt: now,
		updatedAt: now,
		clock:     clock,
	}
}

func (sm *LifecycleStateMachine) Status() LifecycleStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status
}

func (sm *LifecycleStateMachine) CreatedAt() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.createdAt
}

func (sm *LifecycleStateMachine) UpdatedAt() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.updatedAt
}

// StartedAt returns when the resource became live (nil if never)
func (sm *LifecycleStateMachine) StartedAt() *time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.startedAt
}

func (sm *LifecycleStateMachine) StoppedAt() *time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stoppedAt
}

// LastError returns the last recorded failure (nil if none)
func (sm *LifecycleStateMachine) LastError() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastError
}

// MarkConnected transitions CONNECTING to CONNECTED
func (sm *LifecycleStateMachine) MarkConnected() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.status != LifecycleStatusConnecting {
		return fmt.Errorf("cannot connect from %s state", sm.status)
	}

	now := sm.clock.Now()
	sm.status = LifecycleStatusConnected
	sm.startedAt = &now
	sm.updatedAt = now
	return nil
}

// MarkFailed records err and transitions to FAILED from any non-terminal state
func (sm *LifecycleStateMachine) MarkFailed(err error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.status == LifecycleStatusStopped {
		return fmt.Errorf("cannot fail from %s state", sm.status)
	}

	sm.status = LifecycleStatusFailed
	sm.lastError = err
	sm.updatedAt = sm.clock.Now()
	return nil
}

// MarkStopped transitions to the terminal STOPPED state
func (sm *LifecycleStateMachine) MarkStopped() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.status == LifecycleStatusStopped {
		return fmt.Errorf("already %s", sm.status)
	}

	now := sm.clock.Now()
	sm.status = LifecycleStatusStopped
	sm.stoppedAt = &now
	sm.updatedAt = now
	return nil
}

func (sm *LifecycleStateMachine) IsConnected() bool {
	return sm.Status() == LifecycleStatusConnected
}

func (sm *LifecycleStateMachine) IsStopped() bool {
	return sm.Status() == LifecycleStatusStopped
}

// Uptime returns how long the resource has been live, 0 if it never connected
func (sm *LifecycleStateMachine) Uptime() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.startedAt == nil {
		return 0
	}
	end := sm.clock.Now()
	if sm.stoppedAt != nil {
		end = *sm.stoppedAt
	}
	return end.Sub(*sm.startedAt)
}
