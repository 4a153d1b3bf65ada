package dispatch

import (
	"context"

	"tpv-fleet/internal/catalog"
	"tpv-fleet/internal/interfaces"

	"github.com/looplab/fsm"
)

// Control states for one (terminal, command type) pair.
const (
	stateIdle       = "idle"
	stateConfirming = "confirming"
	statePending    = "pending"
	stateAwaiting   = "awaiting"
)

// Control events.
const (
	eventStage    = "stage"    // idle -> confirming, dispatch staged behind a confirmation
	eventSend     = "send"     // idle/confirming -> pending, command on the wire
	eventAwait    = "await"    // pending -> awaiting, accepted but not device-confirmed
	eventResolve  = "resolve"  // pending/awaiting -> idle
	eventDismiss  = "dismiss"  // confirming -> idle, user cancelled
)

// control tracks the dispatch lifecycle of one command type on one terminal.
// Replaces the ad hoc pending/awaiting set bookkeeping with explicit
// transitions; "confirmation outstanding" is a state of its own, so there is
// no cancel-vs-submit ambiguity to untangle.
type control struct {
	fsm *fsm.FSM

	terminalID  string
	commandType catalog.CommandType

	// staged dispatch, only meaningful in stateConfirming
	stagedPayload  map[string]interface{}
	stagedPriority catalog.Priority

	// in-flight invocation, meaningful in statePending/stateAwaiting
	invocationID string

	// fallback timer armed while awaiting a heartbeat
	fallback interfaces.TimerHandle
}

func newControl(terminalID string, commandType catalog.CommandType) *control {
	return &control{
		fsm: fsm.NewFSM(
			stateIdle,
			fsm.Events{
				{Name: eventStage, Src: []string{stateIdle}, Dst: stateConfirming},
				{Name: eventSend, Src: []string{stateIdle, stateConfirming}, Dst: statePending},
				{Name: eventAwait, Src: []string{statePending}, Dst: stateAwaiting},
				{Name: eventResolve, Src: []string{statePending, stateAwaiting}, Dst: stateIdle},
				{Name: eventDismiss, Src: []string{stateConfirming}, Dst: stateIdle},
			},
			fsm.Callbacks{},
		),
		terminalID:  terminalID,
		commandType: commandType,
	}
}

func (c *control) is(state string) bool {
	return c.fsm.Is(state)
}

func (c *control) transition(event string) error {
	return c.fsm.Event(context.Background(), event)
}

// release returns the control to idle and disarms the fallback timer. Safe to
// call from any in-flight state; a no-op when already idle.
func (c *control) release() {
	if c.fallback != nil {
		c.fallback.Cancel()
		c.fallback = nil
	}
	if c.is(statePending) || c.is(stateAwaiting) {
		_ = c.transition(eventResolve)
	}
	c.invocationID = ""
}

// inFlight reports whether a new dispatch of this command type must be
// refused.
func (c *control) inFlight() bool {
	return c.is(statePending) || c.is(stateAwaiting)
}
