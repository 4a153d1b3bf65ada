package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tpv-fleet/internal/catalog"
	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/models"
	"tpv-fleet/internal/toggle"
	"tpv-fleet/internal/wizard"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ===================================================================
// HEALTH & CATALOG
// ===================================================================

// HealthCheck provides a simple health status of the service.
func (s *Server) HealthCheck(c echo.Context) error {
	data := map[string]interface{}{
		"service":   "tpv-fleet",
		"timestamp": time.Now().Unix(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Service is healthy", data))
}

// GetCommandCatalog returns every command definition.
func (s *Server) GetCommandCatalog(c echo.Context) error {
	defs := catalog.All()
	data := map[string]interface{}{
		"commands": defs,
		"count":    len(defs),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Command catalog retrieved successfully", data))
}

// ===================================================================
// TERMINAL CONTROL
// ===================================================================

type dispatchRequest struct {
	VenueID     string                 `json:"venue_id"`
	CommandType string                 `json:"command_type"`
	Payload     map[string]interface{} `json:"payload"`
	Priority    string                 `json:"priority"`
	Confirm     bool                   `json:"confirm"`
}

// DispatchCommand sends a remote command to a terminal. Commands that need
// confirmation answer 428 on the first call; the client re-posts with
// confirm=true to proceed.
func (s *Server) DispatchCommand(c echo.Context) error {
	terminalID := c.Param("id")

	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
	}
	commandType := catalog.CommandType(req.CommandType)
	if !catalog.IsValid(commandType) {
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown command type"))
	}

	ctx := c.Request().Context()

	if req.Confirm {
		ack, err := s.dispatcher.ConfirmDispatch(ctx, terminalID, req.VenueID, commandType)
		if err != nil {
			return s.dispatchError(c, err)
		}
		return c.JSON(http.StatusAccepted, SuccessResponse("Command dispatched successfully", ack))
	}

	ack, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		TerminalID:  terminalID,
		VenueID:     req.VenueID,
		CommandType: commandType,
		Payload:     req.Payload,
		Priority:    catalog.Priority(req.Priority),
	})
	if err != nil {
		return s.dispatchError(c, err)
	}
	return c.JSON(http.StatusAccepted, SuccessResponse("Command dispatched successfully", ack))
}

// CancelConfirmation discards a staged dispatch.
func (s *Server) CancelConfirmation(c echo.Context) error {
	terminalID := c.Param("id")
	commandType := catalog.CommandType(c.Param("type"))

	if err := s.dispatcher.CancelDispatch(terminalID, commandType); err != nil {
		return s.dispatchError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse("Dispatch cancelled", nil))
}

// GetInFlight lists the pending and awaiting command types for a terminal.
func (s *Server) GetInFlight(c echo.Context) error {
	terminalID := c.Param("id")
	data := map[string]interface{}{
		"pending":  s.dispatcher.Pending(terminalID),
		"awaiting": s.dispatcher.Awaiting(terminalID),
	}
	return c.JSON(http.StatusOK, SuccessResponse("In-flight commands retrieved successfully", data))
}

// GetOnline reports the presence-cache view of a terminal.
func (s *Server) GetOnline(c echo.Context) error {
	terminalID := c.Param("id")
	online := s.dispatcher.IsOnline(c.Request().Context(), terminalID)
	return c.JSON(http.StatusOK, SuccessResponse("Terminal presence retrieved successfully",
		map[string]bool{"online": online}))
}

// RemoteActivate is the privileged activation path, gated to operators.
func (s *Server) RemoteActivate(c echo.Context) error {
	if c.Request().Header.Get("X-Operator-Role") != "admin" {
		return c.JSON(http.StatusForbidden, ErrorResponse("operator role required"))
	}

	terminalID := c.Param("id")
	if err := s.dispatcher.RemoteActivate(c.Request().Context(), terminalID); err != nil {
		return s.dispatchError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse("Terminal activation requested", nil))
}

// GetTerminal fetches one terminal record.
func (s *Server) GetTerminal(c echo.Context) error {
	terminal, err := s.db.GetTerminal(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse("terminal not found"))
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
	}
	return c.JSON(http.StatusOK, SuccessResponse("Terminal retrieved successfully", terminal))
}

// ListTerminals returns every terminal of a venue.
func (s *Server) ListTerminals(c echo.Context) error {
	terminals, err := s.db.ListTerminals(c.Param("venueId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
	}
	data := map[string]interface{}{
		"terminals": terminals,
		"count":     len(terminals),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Terminals retrieved successfully", data))
}

// GetCommandHistory returns the paginated command history of a terminal.
func (s *Server) GetCommandHistory(c echo.Context) error {
	venueID := c.Param("venueId")
	terminalID := c.Param("id")
	pagination := GetPaginationParams(c.QueryParam("page"), c.QueryParam("page_size"), 20)
	status := c.QueryParam("status")

	records, total, err := s.db.GetCommandHistory(venueID, terminalID, pagination.Page, pagination.PageSize, status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
	}
	data := map[string]interface{}{
		"commands":  records,
		"total":     total,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
	}
	return c.JSON(http.StatusOK, SuccessResponse("Command history retrieved successfully", data))
}

func (s *Server) dispatchError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, dispatch.ErrTerminalOffline):
		return c.JSON(http.StatusConflict, ErrorResponse("terminal is offline"))
	case errors.Is(err, dispatch.ErrCommandInFlight):
		return c.JSON(http.StatusConflict, ErrorResponse("command already in flight"))
	case errors.Is(err, dispatch.ErrConfirmationRequired):
		return c.JSON(http.StatusPreconditionRequired, ErrorResponse("confirmation required"))
	case errors.Is(err, dispatch.ErrUnknownCommand):
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown command type"))
	case errors.Is(err, dispatch.ErrNothingToConfirm):
		return c.JSON(http.StatusConflict, ErrorResponse("no dispatch awaiting confirmation"))
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
	}
}

// ===================================================================
// DEBOUNCED TOGGLES
// ===================================================================

type toggleRequest struct {
	VenueID string `json:"venue_id"`
	Desired bool   `json:"desired"`
}

// RequestToggle records a toggle click; the debounce window decides what, if
// anything, gets dispatched.
func (s *Server) RequestToggle(c echo.Context) error {
	terminalID := c.Param("id")
	kind := toggle.Kind(c.Param("kind"))
	if !toggle.ValidKind(kind) {
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown toggle kind"))
	}

	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
	}

	ctl := s.toggles.Controller(terminalID, req.VenueID, kind)
	ctl.Request(req.Desired)

	return c.JSON(http.StatusAccepted, SuccessResponse("Toggle scheduled", map[string]bool{"busy": true}))
}

// GetToggleState reports the busy/payload-pending flags of a toggle.
func (s *Server) GetToggleState(c echo.Context) error {
	terminalID := c.Param("id")
	kind := toggle.Kind(c.Param("kind"))
	if !toggle.ValidKind(kind) {
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown toggle kind"))
	}

	ctl := s.toggles.Controller(terminalID, "", kind)
	data := map[string]bool{
		"busy":            ctl.Busy(),
		"payload_pending": ctl.PayloadPending(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Toggle state retrieved successfully", data))
}

// SubmitTogglePayload completes an entering toggle with its payload.
func (s *Server) SubmitTogglePayload(c echo.Context) error {
	terminalID := c.Param("id")
	kind := toggle.Kind(c.Param("kind"))
	if !toggle.ValidKind(kind) {
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown toggle kind"))
	}

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
	}

	ctl := s.toggles.Controller(terminalID, "", kind)
	ack, err := ctl.SubmitPayload(c.Request().Context(), payload)
	if err != nil {
		if errors.Is(err, toggle.ErrNoPayloadPending) {
			return c.JSON(http.StatusConflict, ErrorResponse("no payload request pending"))
		}
		return s.dispatchError(c, err)
	}
	return c.JSON(http.StatusAccepted, SuccessResponse("Toggle dispatched successfully", ack))
}

// CancelTogglePayload abandons an entering toggle.
func (s *Server) CancelTogglePayload(c echo.Context) error {
	terminalID := c.Param("id")
	kind := toggle.Kind(c.Param("kind"))
	if !toggle.ValidKind(kind) {
		return c.JSON(http.StatusBadRequest, ErrorResponse("unknown toggle kind"))
	}

	ctl := s.toggles.Controller(terminalID, "", kind)
	if err := ctl.CancelPayload(); err != nil {
		return c.JSON(http.StatusConflict, ErrorResponse("no payload request pending"))
	}
	return c.JSON(http.StatusOK, SuccessResponse("Toggle cancelled", nil))
}

// ===================================================================
// PURCHASE WIZARD
// ===================================================================

type startPurchaseRequest struct {
	Profile *wizard.VenueProfile `json:"profile"`
}

// StartPurchase opens a purchase flow for a venue.
func (s *Server) StartPurchase(c echo.Context) error {
	var req startPurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
	}

	session := s.wizards.Start(c.Param("venueId"), req.Profile)
	data := map[string]interface{}{
		"session_id":   session.ID,
		"current_step": session.CurrentStep(),
		"prefill":      session.PrefilledShipping(),
	}
	return c.JSON(http.StatusCreated, SuccessResponse("Purchase flow started", data))
}

// GetPurchase reports where an open flow stands.
func (s *Server) GetPurchase(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}
	data := map[string]interface{}{
		"session_id":   session.ID,
		"current_step": session.CurrentStep(),
	}
	return c.JSON(http.StatusOK, SuccessResponse("Purchase session retrieved successfully", data))
}

// SubmitPurchaseStep validates and snapshots the given step's form data.
func (s *Server) SubmitPurchaseStep(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}

	step, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid step number"))
	}

	switch wizard.Step(step) {
	case wizard.StepConfigure:
		var data wizard.ConfigureData
		if err := c.Bind(&data); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
		}
		return s.stepOutcome(c, session, session.SubmitConfigure(data))
	case wizard.StepShipping:
		var data wizard.ShippingData
		if err := c.Bind(&data); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
		}
		return s.stepOutcome(c, session, session.SubmitShipping(data))
	case wizard.StepPayment:
		var data wizard.PaymentData
		if err := c.Bind(&data); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
		}
		return s.stepOutcome(c, session, session.SubmitPayment(data))
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse("step must be 1, 2 or 3"))
	}
}

func (s *Server) stepOutcome(c echo.Context, session *wizard.Session, err error) error {
	if err != nil {
		var verrs wizard.ValidationErrors
		if errors.As(err, &verrs) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"status":  "error",
				"message": "validation failed",
				"errors":  verrs,
			})
		}
		return s.wizardError(c, err)
	}
	data := map[string]interface{}{"current_step": session.CurrentStep()}
	return c.JSON(http.StatusOK, SuccessResponse("Step accepted", data))
}

// PurchaseBack moves one step backwards.
func (s *Server) PurchaseBack(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}
	if err := session.Back(); err != nil {
		return s.wizardError(c, err)
	}
	data := map[string]interface{}{"current_step": session.CurrentStep()}
	return c.JSON(http.StatusOK, SuccessResponse("Moved back", data))
}

// PurchaseEdit jumps from review back to an earlier step.
func (s *Server) PurchaseEdit(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}
	step, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid step number"))
	}
	if err := session.Edit(wizard.Step(step)); err != nil {
		return s.wizardError(c, err)
	}
	data := map[string]interface{}{"current_step": session.CurrentStep()}
	return c.JSON(http.StatusOK, SuccessResponse("Editing step", data))
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

// PurchaseTerms records the terms checkbox.
func (s *Server) PurchaseTerms(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}
	var req termsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse("invalid request body"))
	}
	session.AcceptTerms(req.Accepted)
	return c.JSON(http.StatusOK, SuccessResponse("Terms updated", nil))
}

// PurchaseReview returns the derived order summary.
func (s *Server) PurchaseReview(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}
	summary, err := session.Review()
	if err != nil {
		return s.wizardError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse("Purchase summary", summary))
}

// CompletePurchase finalizes the flow and reports the batch outcome.
func (s *Server) CompletePurchase(c echo.Context) error {
	session, err := s.wizards.Get(c.Param("sessionId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse("purchase session not found"))
	}

	result, err := session.Complete(c.Request().Context())
	if err != nil {
		return s.wizardError(c, err)
	}
	s.wizards.Close(session.ID)

	message := "Purchase completed"
	if result.Status != models.OrderStatusCompleted {
		message = "Purchase finished with failures"
	}
	return c.JSON(http.StatusOK, SuccessResponse(message, result))
}

// CancelPurchase discards an open flow and all of its step state.
func (s *Server) CancelPurchase(c echo.Context) error {
	s.wizards.Close(c.Param("sessionId"))
	return c.JSON(http.StatusOK, SuccessResponse("Purchase session discarded", nil))
}

func (s *Server) wizardError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrEditFromReview):
		return c.JSON(http.StatusConflict, ErrorResponse(err.Error()))
	case errors.Is(err, wizard.ErrStepIncomplete),
		errors.Is(err, wizard.ErrTermsNotAccepted):
		return c.JSON(http.StatusPreconditionFailed, ErrorResponse(err.Error()))
	case errors.Is(err, wizard.ErrAlreadyCompleted):
		return c.JSON(http.StatusGone, ErrorResponse(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
	}
}
