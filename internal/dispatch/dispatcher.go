package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tpv-fleet/internal/catalog"
	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/models"

	rediskeys "tpv-fleet/internal/common/redis"
)

// MQTT topics towards the fleet.
const (
	CommandTopicPattern  = "tpv/v1/%s/command"
	ActivateTopicPattern = "tpv/v1/%s/activate"
)

// Request is one dispatch attempt against a terminal.
type Request struct {
	TerminalID  string
	VenueID     string
	CommandType catalog.CommandType
	Payload     map[string]interface{}
	Priority    catalog.Priority // empty means the catalog default
}

// Ack is returned once a command is on the wire.
type Ack struct {
	InvocationID string `json:"invocation_id"`
	Status       string `json:"status"`
	Awaiting     bool   `json:"awaiting_heartbeat"`
}

// Dispatcher issues device-control commands, enforces the offline and
// duplicate-dispatch guards, and tracks per-(terminal, command) state until
// a heartbeat or the fallback timer releases it.
type Dispatcher struct {
	mu       sync.Mutex
	controls map[string]*control

	db        interfaces.DatabaseService
	cache     interfaces.CacheService
	publisher interfaces.MessagePublisher
	scheduler interfaces.Scheduler
	idGen     interfaces.IDGenerator
	config    interfaces.ConfigProvider
	logger    interfaces.Logger
}

func NewDispatcher(
	db interfaces.DatabaseService,
	cache interfaces.CacheService,
	publisher interfaces.MessagePublisher,
	scheduler interfaces.Scheduler,
	idGen interfaces.IDGenerator,
	config interfaces.ConfigProvider,
	logger interfaces.Logger,
) *Dispatcher {
	return &Dispatcher{
		controls:  make(map[string]*control),
		db:        db,
		cache:     cache,
		publisher: publisher,
		scheduler: scheduler,
		idGen:     idGen,
		config:    config,
		logger:    logger,
	}
}

func controlKey(terminalID string, commandType catalog.CommandType) string {
	return terminalID + "|" + string(commandType)
}

func (d *Dispatcher) controlFor(terminalID string, commandType catalog.CommandType) *control {
	key := controlKey(terminalID, commandType)
	ctl, ok := d.controls[key]
	if !ok {
		ctl = newControl(terminalID, commandType)
		d.controls[key] = ctl
	}
	return ctl
}

// IsOnline checks the presence cache; a live TTL-guarded key means the
// terminal reported a heartbeat recently.
func (d *Dispatcher) IsOnline(ctx context.Context, terminalID string) bool {
	ok, err := d.cache.Exists(ctx, rediskeys.TerminalPresence(terminalID))
	if err != nil {
		d.logger.Warnf("presence lookup failed for %s: %v", terminalID, err)
		return false
	}
	return ok
}

// Dispatch validates and sends a command. For commands that require
// confirmation it stages the dispatch and returns ErrConfirmationRequired;
// the caller then resolves the staged dispatch with ConfirmDispatch or
// CancelDispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Ack, error) {
	def, ok := catalog.Definition(req.CommandType)
	if !ok {
		return nil, ErrUnknownCommand
	}

	// Hard client-side guard: no network call for offline terminals.
	if def.RequiresOnline && !d.IsOnline(ctx, req.TerminalID) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalOffline, req.TerminalID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctl := d.controlFor(req.TerminalID, req.CommandType)
	if ctl.inFlight() {
		return nil, fmt.Errorf("%w: %s on %s", ErrCommandInFlight, req.CommandType, req.TerminalID)
	}

	priority := req.Priority
	if priority == "" {
		priority = def.DefaultPriority
	}

	if def.RequiresConfirmation || def.IsDangerous {
		// Restage on repeat calls so the latest payload wins.
		if ctl.is(stateIdle) {
			if err := ctl.transition(eventStage); err != nil {
				return nil, err
			}
		}
		ctl.stagedPayload = req.Payload
		ctl.stagedPriority = priority
		return nil, ErrConfirmationRequired
	}

	return d.send(ctx, ctl, req.VenueID, req.Payload, priority, def)
}

// ConfirmDispatch sends the staged dispatch for (terminal, command).
func (d *Dispatcher) ConfirmDispatch(ctx context.Context, terminalID, venueID string, commandType catalog.CommandType) (*Ack, error) {
	def, ok := catalog.Definition(commandType)
	if !ok {
		return nil, ErrUnknownCommand
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctl := d.controlFor(terminalID, commandType)
	if !ctl.is(stateConfirming) {
		return nil, ErrNothingToConfirm
	}

	payload := ctl.stagedPayload
	priority := ctl.stagedPriority
	ctl.stagedPayload = nil

	return d.send(ctx, ctl, venueID, payload, priority, def)
}

// CancelDispatch discards the staged dispatch without sending anything.
func (d *Dispatcher) CancelDispatch(terminalID string, commandType catalog.CommandType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctl := d.controlFor(terminalID, commandType)
	if !ctl.is(stateConfirming) {
		return ErrNothingToConfirm
	}
	ctl.stagedPayload = nil
	return ctl.transition(eventDismiss)
}

// send performs the actual publish. Caller holds d.mu.
func (d *Dispatcher) send(ctx context.Context, ctl *control, venueID string, payload map[string]interface{}, priority catalog.Priority, def catalog.CommandDefinition) (*Ack, error) {
	invocationID := d.idGen.NewID()

	record := &models.CommandRecord{
		InvocationID: invocationID,
		TerminalID:   ctl.terminalID,
		VenueID:      venueID,
		CommandType:  string(ctl.commandType),
		Priority:     string(priority),
		Payload:      models.JSON(payload),
		Status:       models.StatusQueued,
		RequestTime:  time.Now(),
	}
	if err := d.db.CreateCommandRecord(record); err != nil {
		return nil, fmt.Errorf("failed to record command: %w", err)
	}

	if err := ctl.transition(eventSend); err != nil {
		return nil, err
	}
	ctl.invocationID = invocationID

	msg := models.CommandMessage{
		InvocationID: invocationID,
		CommandType:  string(ctl.commandType),
		Priority:     string(priority),
		Payload:      payload,
		Timestamp:    time.Now().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		ctl.release()
		return nil, fmt.Errorf("failed to marshal command message: %w", err)
	}

	topic := fmt.Sprintf(CommandTopicPattern, ctl.terminalID)
	if err := d.publisher.Publish(topic, 1, false, data); err != nil {
		ctl.release()
		if uerr := d.db.UpdateCommandStatus(record, models.StatusCompletedFailed, err.Error()); uerr != nil {
			d.logger.Errorf("failed to record dispatch failure for %s: %v", invocationID, uerr)
		}
		return nil, fmt.Errorf("failed to publish command: %w", err)
	}

	if err := d.db.UpdateCommandStatus(record, models.StatusSent, ""); err != nil {
		d.logger.Errorf("failed to mark command %s sent: %v", invocationID, err)
	}

	awaiting := def.AwaitsHeartbeat
	if awaiting {
		if err := ctl.transition(eventAwait); err != nil {
			d.logger.Errorf("await transition failed for %s: %v", invocationID, err)
		} else {
			d.armFallback(ctl, invocationID)
		}
	} else {
		ctl.release()
	}

	d.logger.Infof("COMMAND %s dispatched to %s (invocation %s, awaiting=%v)",
		ctl.commandType, ctl.terminalID, invocationID, awaiting)

	return &Ack{InvocationID: invocationID, Status: models.StatusSent, Awaiting: awaiting}, nil
}

// armFallback starts the bounded wait for a device heartbeat. Caller holds
// d.mu.
func (d *Dispatcher) armFallback(ctl *control, invocationID string) {
	terminalID, commandType := ctl.terminalID, ctl.commandType
	ctl.fallback = d.scheduler.Schedule(d.config.GetHeartbeatTimeout(), func() {
		d.expireAwaiting(terminalID, commandType, invocationID)
	})
}

// expireAwaiting releases an awaiting control whose heartbeat never arrived.
// Clearing is idempotent: a heartbeat that already released the control makes
// this a no-op, and a late heartbeat after expiry finds nothing to clear.
func (d *Dispatcher) expireAwaiting(terminalID string, commandType catalog.CommandType, invocationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctl, ok := d.controls[controlKey(terminalID, commandType)]
	if !ok || !ctl.is(stateAwaiting) || ctl.invocationID != invocationID {
		return
	}

	ctl.release()
	// Not an assertion of failure; the true outcome is whatever the next
	// status refresh or result message reports.
	if err := d.db.UpdateCommandStatusByInvocation(invocationID, models.StatusExpired, "no heartbeat within fallback window"); err != nil {
		d.logger.Errorf("failed to mark invocation %s expired: %v", invocationID, err)
	}
	d.logger.Warnf("COMMAND %s on %s expired waiting for heartbeat", commandType, terminalID)
}

// ResolveHeartbeat clears every awaiting control for a terminal and cancels
// their fallback timers. Called on each status push for that terminal.
func (d *Dispatcher) ResolveHeartbeat(terminalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ctl := range d.controls {
		if ctl.terminalID == terminalID && ctl.is(stateAwaiting) {
			d.logger.Debugf("heartbeat released %s on %s", ctl.commandType, terminalID)
			ctl.release()
		}
	}
}

// HandleResult applies a device-reported command outcome to the history and,
// for terminal states, releases the matching control.
func (d *Dispatcher) HandleResult(msg models.ResultMessage) {
	if err := d.db.UpdateCommandStatusByInvocation(msg.InvocationID, msg.Status, msg.Message); err != nil {
		d.logger.Errorf("failed to record result for %s: %v", msg.InvocationID, err)
	}

	switch msg.Status {
	case models.StatusReceived, models.StatusExecuting:
		// Informational; the control stays held.
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ctl := range d.controls {
		if ctl.terminalID == msg.TerminalID && ctl.invocationID == msg.InvocationID {
			ctl.release()
			return
		}
	}
}

// Pending lists command types currently on the wire for a terminal.
func (d *Dispatcher) Pending(terminalID string) []catalog.CommandType {
	return d.collect(terminalID, statePending)
}

// Awaiting lists command types accepted but not yet device-confirmed.
func (d *Dispatcher) Awaiting(terminalID string) []catalog.CommandType {
	return d.collect(terminalID, stateAwaiting)
}

func (d *Dispatcher) collect(terminalID, state string) []catalog.CommandType {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]catalog.CommandType, 0)
	for _, t := range catalog.All() {
		if ctl, ok := d.controls[controlKey(terminalID, t.CommandType)]; ok && ctl.is(state) {
			out = append(out, t.CommandType)
		}
	}
	return out
}

// InFlightCount reports how many controls are pending or awaiting, for the
// ops stats endpoint.
func (d *Dispatcher) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, ctl := range d.controls {
		if ctl.inFlight() {
			n++
		}
	}
	return n
}

// RemoteActivate is the privileged activation path: it nudges the device and
// flips the terminal record.
func (d *Dispatcher) RemoteActivate(ctx context.Context, terminalID string) error {
	if !d.IsOnline(ctx, terminalID) {
		return fmt.Errorf("%w: %s", ErrTerminalOffline, terminalID)
	}

	payload, err := json.Marshal(map[string]string{
		"terminalId": terminalID,
		"timestamp":  time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf(ActivateTopicPattern, terminalID)
	if err := d.publisher.Publish(topic, 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish activation: %w", err)
	}

	return d.db.MarkTerminalActivated(terminalID)
}
