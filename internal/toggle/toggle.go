package toggle

import (
	"context"
	"errors"
	"sync"

	"tpv-fleet/internal/catalog"
	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/interfaces"
)

// Kind selects which two-state control a controller drives.
type Kind string

const (
	KindLock        Kind = "lock"
	KindMaintenance Kind = "maintenance"
)

var ErrNoPayloadPending = errors.New("no payload request pending")

// ValidKind reports whether k names a toggle.
func ValidKind(k Kind) bool {
	return k == KindLock || k == KindMaintenance
}

// commands maps a toggle kind and direction onto catalog commands. Entering
// needs payload collection first, exiting dispatches directly.
func commands(kind Kind) (enter, exit catalog.CommandType) {
	if kind == KindMaintenance {
		return catalog.CommandMaintenanceMode, catalog.CommandExitMaintenance
	}
	return catalog.CommandLock, catalog.CommandUnlock
}

// Controller coalesces rapid toggling of one control on one terminal into a
// single dispatch. Every Request gives instant busy feedback; only the last
// requested state within the debounce window is acted on.
type Controller struct {
	mu sync.Mutex

	terminalID string
	venueID    string
	kind       Kind

	dispatcher *dispatch.Dispatcher
	scheduler  interfaces.Scheduler
	config     interfaces.ConfigProvider
	logger     interfaces.Logger

	busy            bool
	desired         bool
	debounce        interfaces.TimerHandle
	awaitingPayload bool
	closed          bool

	// onPayloadRequired fires when the settled direction needs payload
	// collection (lock reason, maintenance message) before dispatch.
	onPayloadRequired func(kind Kind, desired bool)
}

func NewController(
	terminalID, venueID string,
	kind Kind,
	dispatcher *dispatch.Dispatcher,
	scheduler interfaces.Scheduler,
	config interfaces.ConfigProvider,
	logger interfaces.Logger,
	onPayloadRequired func(kind Kind, desired bool),
) *Controller {
	return &Controller{
		terminalID:        terminalID,
		venueID:           venueID,
		kind:              kind,
		dispatcher:        dispatcher,
		scheduler:         scheduler,
		config:            config,
		logger:            logger,
		onPayloadRequired: onPayloadRequired,
	}
}

// Request records the desired state and (re)starts the debounce window. The
// control reports busy immediately; a newer request supersedes the scheduled
// one.
func (c *Controller) Request(desired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.busy = true
	c.desired = desired
	if c.debounce != nil {
		c.debounce.Cancel()
	}
	c.debounce = c.scheduler.Schedule(c.config.GetDebounceInterval(), c.settle)
}

// settle runs when the debounce window closes and acts on the last requested
// state.
func (c *Controller) settle() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	desired := c.desired

	if desired {
		// Entering lock/maintenance needs a payload before dispatch; the
		// busy mark holds until the payload is submitted or cancelled.
		c.awaitingPayload = true
		notify := c.onPayloadRequired
		kind := c.kind
		c.mu.Unlock()
		if notify != nil {
			notify(kind, desired)
		}
		return
	}
	c.mu.Unlock()

	_, exit := commands(c.kind)
	c.dispatchResolved(exit, nil)
}

// SubmitPayload completes the entering path with the collected payload. The
// busy mark persists until the dispatcher resolves the command.
func (c *Controller) SubmitPayload(ctx context.Context, payload map[string]interface{}) (*dispatch.Ack, error) {
	c.mu.Lock()
	if !c.awaitingPayload {
		c.mu.Unlock()
		return nil, ErrNoPayloadPending
	}
	c.awaitingPayload = false
	enter, _ := commands(c.kind)
	c.mu.Unlock()

	return c.dispatchCommand(ctx, enter, payload)
}

// CancelPayload abandons the entering path and clears the busy mark. Distinct
// from SubmitPayload by construction, so a cancelled dialog can never be
// mistaken for a submitted one.
func (c *Controller) CancelPayload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.awaitingPayload {
		return ErrNoPayloadPending
	}
	c.awaitingPayload = false
	c.busy = false
	return nil
}

// dispatchResolved is the exiting path: no payload, no confirmation.
func (c *Controller) dispatchResolved(commandType catalog.CommandType, payload map[string]interface{}) {
	if _, err := c.dispatchCommand(context.Background(), commandType, payload); err != nil {
		c.logger.Warnf("toggle dispatch %s on %s failed: %v", commandType, c.terminalID, err)
	}
}

func (c *Controller) dispatchCommand(ctx context.Context, commandType catalog.CommandType, payload map[string]interface{}) (*dispatch.Ack, error) {
	req := dispatch.Request{
		TerminalID:  c.terminalID,
		VenueID:     c.venueID,
		CommandType: commandType,
		Payload:     payload,
	}

	ack, err := c.dispatcher.Dispatch(ctx, req)
	if errors.Is(err, dispatch.ErrConfirmationRequired) {
		// The toggle flow already collected explicit user intent, which
		// stands in for the confirmation step.
		ack, err = c.dispatcher.ConfirmDispatch(ctx, c.terminalID, c.venueID, commandType)
	}

	c.mu.Lock()
	c.busy = err == nil && ack != nil && ack.Awaiting
	c.mu.Unlock()

	return ack, err
}

// Busy reports whether the control should be disabled: a debounce window is
// open, a payload is being collected, or the command is still in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy || c.awaitingPayload {
		return true
	}
	enter, exit := commands(c.kind)
	for _, t := range c.dispatcher.Pending(c.terminalID) {
		if t == enter || t == exit {
			return true
		}
	}
	for _, t := range c.dispatcher.Awaiting(c.terminalID) {
		if t == enter || t == exit {
			return true
		}
	}
	return false
}

// PayloadPending reports whether the controller is waiting on payload
// collection for an entering transition.
func (c *Controller) PayloadPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaitingPayload
}

// Close cancels any scheduled work. Stale debounce callbacks firing after
// teardown are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.debounce != nil {
		c.debounce.Cancel()
		c.debounce = nil
	}
	c.awaitingPayload = false
	c.busy = false
}
