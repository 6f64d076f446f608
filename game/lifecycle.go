package game

import (
	"errors"
	"fmt"
	"sync"
)

// LifecycleState is the phase of the new-simulation flow.
type LifecycleState uint8

const (
	// Idle: a simulation is running and no replacement is in progress.
	Idle LifecycleState = iota
	// AwaitingSeedInput: a new simulation was requested; waiting for a name.
	AwaitingSeedInput
	// Building: the replacement simulation is being constructed.
	Building
	// Cancelled: the request was abandoned; Reset returns to Idle.
	Cancelled
)

var lifecycleNames = [...]string{"idle", "awaiting_seed_input", "building", "cancelled"}

func (s LifecycleState) String() string {
	if int(s) < len(lifecycleNames) {
		return lifecycleNames[s]
	}
	return fmt.Sprintf("lifecycle(%d)", s)
}

// ErrInvalidTransition is returned when an event does not apply to the
// current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Lifecycle guards the new-simulation flow. It is safe for concurrent use.
type Lifecycle struct {
	mu    sync.Mutex
	state LifecycleState
}

// State returns the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) transition(from, to LifecycleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, l.state)
	}
	l.state = to
	return nil
}

// RequestNew moves Idle to AwaitingSeedInput.
func (l *Lifecycle) RequestNew() error { return l.transition(Idle, AwaitingSeedInput) }

// BeginBuild moves AwaitingSeedInput to Building.
func (l *Lifecycle) BeginBuild() error { return l.transition(AwaitingSeedInput, Building) }

// Finish moves Building back to Idle.
func (l *Lifecycle) Finish() error { return l.transition(Building, Idle) }

// Cancel abandons a pending request. Only a request still waiting for its
// seed can be cancelled.
func (l *Lifecycle) Cancel() error { return l.transition(AwaitingSeedInput, Cancelled) }

// Reset moves Cancelled back to Idle.
func (l *Lifecycle) Reset() error { return l.transition(Cancelled, Idle) }
