// Package mic implements the microphone coordinator (C9): a debounced
// enable/disable signal bound to transcription start/stop, so a burst of
// app start/stop churn within the debounce window collapses to a single
// state transition and a single transcription engine start.
package mic

import (
	"sync"
	"time"
)

// DebounceWindow is how long the coordinator waits after the last observed
// edge before committing to a new microphone state.
const DebounceWindow = 1 * time.Second

// Controller receives the committed mic state transitions: Enable starts
// the transcription engine and announces microphone_state_change{true};
// Disable stops it and announces microphone_state_change{false}.
type Controller interface {
	Enable()
	Disable()
}

// Coordinator debounces a stream of desired-state requests (one per
// subscription change) into committed Enable/Disable calls on Controller.
// Not safe for concurrent use outside the session's serial event queue,
// except that the internal timer callback re-enters through a mutex.
//
// The first request after the debouncer is closed (a fresh Coordinator, or
// one whose prior debouncer already fired or was flushed) commits
// immediately, with no timer armed at all; only once a second request
// arrives while that debouncer is still open does a timer get armed, so a
// burst of churn within the window collapses to the single state observed
// when it fires.
type Coordinator struct {
	mu         sync.Mutex
	controller Controller
	window     time.Duration
	timer      *time.Timer
	current    bool
	haveState  bool
	pending    bool
	open       bool
}

// New returns a Coordinator bound to controller, using DebounceWindow.
func New(controller Controller) *Coordinator {
	return &Coordinator{controller: controller, window: DebounceWindow}
}

// Request records the desired mic state derived from the current
// subscription set (anyMediaSubs).
func (c *Coordinator) Request(desired bool) {
	c.mu.Lock()
	if !c.open {
		c.open = true
		c.pending = desired
		changed := !c.haveState || c.current != desired
		c.current = desired
		c.haveState = true
		c.mu.Unlock()
		if changed {
			c.notify(desired)
		}
		return
	}

	c.pending = desired
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.fire)
	c.mu.Unlock()
}

// fire runs when the debounce timer expires: it commits whatever state was
// last requested and closes the debouncer, so the next Request commits
// immediately again.
func (c *Coordinator) fire() {
	c.mu.Lock()
	desired := c.pending
	changed := c.current != desired
	c.current = desired
	c.open = false
	c.timer = nil
	c.mu.Unlock()

	if changed {
		c.notify(desired)
	}
}

func (c *Coordinator) notify(desired bool) {
	if desired {
		c.controller.Enable()
	} else {
		c.controller.Disable()
	}
}

// Flush cancels any pending debounce timer without committing, used during
// session teardown. It also closes the debouncer, so a Request after Flush
// is treated as a fresh first edge and commits immediately again.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.open = false
}

// Current reports the last committed state, for diagnostics.
func (c *Coordinator) Current() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
