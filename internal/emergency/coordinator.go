// Package emergency manages the fleet-wide emergency surface state.
// Triggering it orders every connected submarine up; the latched state
// stays visible until cleared.
package emergency

import (
	"sync"
	"time"
)

// State represents the current emergency surface state.
type State struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	Initiator   string    `json:"initiator,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitzero"`
}

// Coordinator latches emergency state and notifies via callback. The
// actual surfacing orders are wired externally.
type Coordinator struct {
	mu        sync.RWMutex
	state     State
	onTrigger func(State)
}

// New creates a Coordinator with an inactive initial state. The
// onTrigger callback fires on every trigger; it may be nil.
func New(onTrigger func(State)) *Coordinator {
	return &Coordinator{onTrigger: onTrigger}
}

// Trigger activates the emergency with the given reason and initiator
// and returns the new state.
func (c *Coordinator) Trigger(reason, initiator string) State {
	c.mu.Lock()
	c.state = State{
		Active:      true,
		Reason:      reason,
		Initiator:   initiator,
		TriggeredAt: time.Now(),
	}
	s := c.state
	cb := c.onTrigger
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
	return s
}

// Clear returns to an inactive state.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()
}

// GetState returns a copy of the current state.
func (c *Coordinator) GetState() State {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()
	return s
}
