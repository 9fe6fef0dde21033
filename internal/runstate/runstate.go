// Package runstate implements the capture run-state machine.
package runstate

import (
	"fmt"
	"sync"

	"firestige.xyz/sniffer/internal/core"
)

// State is the capture run state.
type State uint8

const (
	Init State = iota
	Running
	Paused
	Stopped
)

var stateNames = [...]string{
	Init:    "init",
	Running: "running",
	Paused:  "paused",
	Stopped: "stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// AllStates lists every state.
func AllStates() []State {
	return []State{Init, Running, Paused, Stopped}
}

// Controller guards the run state. Waiters block on a condition variable
// until the state leaves Init/Paused.
type Controller struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state State

	// onChange is invoked outside the lock after every transition.
	onChange func(State)
}

// NewController creates a controller in Init.
func NewController() *Controller {
	c := &Controller{state: Init}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// OnChange registers a callback for state transitions. Must be set before use.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Start moves Init or Paused to Running. It is a no-op when already Running
// and fails with ErrStopped once stopped.
func (c *Controller) Start() error {
	c.mu.Lock()
	switch c.state {
	case Stopped:
		c.mu.Unlock()
		return core.ErrStopped
	case Running:
		c.mu.Unlock()
		return nil
	}
	c.state = Running
	fn := c.onChange
	c.mu.Unlock()

	c.cond.Broadcast()
	if fn != nil {
		fn(Running)
	}
	return nil
}

// Pause moves Running to Paused. It reports whether a transition happened.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return false
	}
	c.state = Paused
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(Paused)
	}
	return true
}

// Stop moves any state to Stopped. Stopped is terminal.
func (c *Controller) Stop() {
	c.mu.Lock()
	changed := c.state != Stopped
	c.state = Stopped
	fn := c.onChange
	c.mu.Unlock()

	c.cond.Broadcast()
	if changed && fn != nil {
		fn(Stopped)
	}
}

// Await blocks while the state is Init or Paused and returns Running or Stopped.
func (c *Controller) Await() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == Init || c.state == Paused {
		c.cond.Wait()
	}
	return c.state
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
