// Package call owns the state machine for an active incoming-call alert:
// the ringing screen raised by a VoIP push or a fired local alert, the
// swipe-to-answer gesture, decline and snooze.
package call

import (
	"errors"
	"log/slog"
	"sync"

	"callme/internal/alert"
	"callme/internal/models"
)

const (
	// SwipeThreshold is the full travel of the answer affordance.
	SwipeThreshold = 150.0
	// Releasing at or past this fraction of the travel answers the call.
	answerFraction = 0.8
)

type State string

const (
	StateIdle      State = "idle"
	StateRinging   State = "ringing"
	StateAnswering State = "answering"
)

var ErrNotRinging = errors.New("call: no active call session")

// Snoozer re-registers an event's alert a fixed delay later.
type Snoozer interface {
	Snooze(ev models.Event) (alert.Outcome, error)
}

// Callbacks are the host app hooks. OnAnswer typically starts the spoken
// event readout; OnDismiss tears down the call screen. Either may be nil.
type Callbacks struct {
	OnAnswer  func(ev models.Event)
	OnDismiss func()
}

// Controller is a single-slot session holder: at most one call session is
// active at a time, and a new ring while one is active replaces it rather
// than queueing. A call rings until the user acts; there is no timeout.
type Controller struct {
	mu         sync.Mutex
	state      State
	event      models.Event
	dragOffset float64

	snoozer Snoozer
	cb      Callbacks
	logger  *slog.Logger
}

func NewController(snoozer Snoozer, cb Callbacks, logger *slog.Logger) *Controller {
	return &Controller{
		state:   StateIdle,
		snoozer: snoozer,
		cb:      cb,
		logger:  logger.With("component", "call"),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the event behind the active call, if any.
func (c *Controller) Session() (models.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event, c.state != StateIdle
}

// Present starts ringing for an event. If a session is already active it
// is replaced, not queued.
func (c *Controller) Present(ev models.Event) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.logger.Info("replacing active call session", "old_event", c.event.ID, "new_event", ev.ID)
	}
	c.state = StateRinging
	c.event = ev
	c.dragOffset = 0
	c.mu.Unlock()
}

// Drag tracks the answer affordance. The offset is clamped to
// [0, SwipeThreshold]; the clamped value is returned for the UI to render.
// Outside a ringing session the gesture is ignored.
func (c *Controller) Drag(offset float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRinging {
		return 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset > SwipeThreshold {
		offset = SwipeThreshold
	}
	c.dragOffset = offset
	return offset
}

func (c *Controller) DragOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragOffset
}

// Release ends the drag. At or past 80% of the travel the call is
// answered: the answer callback runs and the session resets to idle.
// Below the threshold the affordance snaps back and ringing continues.
func (c *Controller) Release() State {
	c.mu.Lock()
	if c.state != StateRinging {
		c.mu.Unlock()
		return c.state
	}

	if c.dragOffset < answerFraction*SwipeThreshold {
		c.dragOffset = 0
		c.mu.Unlock()
		return StateRinging
	}

	c.state = StateAnswering
	ev := c.event
	c.mu.Unlock()

	if c.cb.OnAnswer != nil {
		c.cb.OnAnswer(ev)
	}
	c.reset()
	return StateAnswering
}

// Decline dismisses the call with no further side effects.
func (c *Controller) Decline() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.reset()
}

// Snooze dismisses the call and re-schedules the same event a fixed delay
// later. The derived notification id is unchanged; the original alert has
// already fired, so nothing is replaced.
func (c *Controller) Snooze() error {
	c.mu.Lock()
	if c.state != StateRinging {
		c.mu.Unlock()
		return ErrNotRinging
	}
	ev := c.event
	c.mu.Unlock()

	if _, err := c.snoozer.Snooze(ev); err != nil {
		// Leave the call ringing so the user can act again.
		c.logger.Warn("snooze failed", "event_id", ev.ID, "error", err)
		return err
	}
	c.reset()
	return nil
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.state = StateIdle
	c.event = models.Event{}
	c.dragOffset = 0
	c.mu.Unlock()

	if c.cb.OnDismiss != nil {
		c.cb.OnDismiss()
	}
}
