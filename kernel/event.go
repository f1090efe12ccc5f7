package kernel

import (
	"fmt"
	"sync"
)

// ResetType selects what happens to a signalled event once a waiter is
// satisfied.
type ResetType uint8

const (
	// OneShot events clear themselves when exactly one wait is satisfied.
	OneShot ResetType = iota
	// Sticky events stay signalled until explicitly cleared.
	Sticky
)

func (r ResetType) String() string {
	switch r {
	case OneShot:
		return "oneshot"
	case Sticky:
		return "sticky"
	}

	return fmt.Sprintf("ResetType(%d)", uint8(r))
}

// Event is a kernel synchronisation object. Waiting itself belongs to the
// scheduler; Acquire is the non-blocking step the scheduler performs when a
// waiting thread is checked against the event.
type Event struct {
	id    uint64
	name  string
	reset ResetType

	mu       sync.Mutex
	signaled bool
	signals  uint64
}

func (e *Event) ObjectID() uint64 { return e.id }
func (e *Event) Name() string     { return e.name }
func (e *Event) TypeName() string { return "Event" }

func (e *Event) ResetType() ResetType {
	return e.reset
}

// Signal marks the event signalled.
func (e *Event) Signal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.signaled = true
	e.signals++
}

// Clear marks the event unsignalled.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.signaled = false
}

// Signaled reports the current state without consuming it.
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.signaled
}

// Acquire satisfies one wait if the event is signalled. A OneShot event is
// cleared by a successful Acquire.
func (e *Event) Acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.signaled {
		return false
	}

	if e.reset == OneShot {
		e.signaled = false
	}

	return true
}

// SignalCount returns how many times Signal has been called.
func (e *Event) SignalCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.signals
}
