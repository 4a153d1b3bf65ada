package wizard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/models"
)

// Step numbers of the linear purchase flow.
type Step int

const (
	StepConfigure Step = 1
	StepShipping  Step = 2
	StepPayment   Step = 3
	StepReview    Step = 4
)

var (
	ErrWrongStep        = errors.New("submission does not match the current step")
	ErrStepIncomplete   = errors.New("earlier step data is missing")
	ErrTermsNotAccepted = errors.New("terms must be accepted before completing")
	ErrAlreadyCompleted = errors.New("purchase flow already completed")
	ErrEditFromReview   = errors.New("editing a step is only allowed from the review step")
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors keeps the user on the current step with per-field detail.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConfigureData is the validated snapshot of step 1.
type ConfigureData struct {
	Quantity   int    `json:"quantity"`
	NamePrefix string `json:"name_prefix"`
}

// ShippingData is the validated snapshot of step 2.
type ShippingData struct {
	ContactName  string        `json:"contact_name"`
	ContactEmail string        `json:"contact_email"`
	ContactPhone string        `json:"contact_phone"`
	AddressLine  string        `json:"address_line"`
	City         string        `json:"city"`
	PostalCode   string        `json:"postal_code"`
	Country      string        `json:"country"`
	Speed        ShippingSpeed `json:"speed"`

	// WasPreFilled records whether the venue profile supplied every
	// required field; informational only, never blocking.
	WasPreFilled bool `json:"was_pre_filled"`
}

// PaymentData is the validated snapshot of step 3.
type PaymentData struct {
	Method     PaymentMethod `json:"method"`
	CardNumber string        `json:"card_number,omitempty"`
	CardExpiry string        `json:"card_expiry,omitempty"`
	CardCVV    string        `json:"card_cvv,omitempty"`
	CardHolder string        `json:"card_holder,omitempty"`
}

// VenueProfile is the optional prefill source for the shipping step.
type VenueProfile struct {
	ContactName  string
	ContactEmail string
	ContactPhone string
	AddressLine  string
	City         string
	PostalCode   string
	Country      string
}

func (p *VenueProfile) complete() bool {
	return p != nil &&
		p.ContactName != "" && p.ContactEmail != "" && p.ContactPhone != "" &&
		p.AddressLine != "" && p.City != "" && p.PostalCode != "" && p.Country != ""
}

// UnitFailure is one failed terminal creation during completion.
type UnitFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// CompletionResult reports the batch outcome of a finished flow.
type CompletionResult struct {
	OrderID     string        `json:"order_id"`
	Status      string        `json:"status"` // COMPLETED, PARTIAL, FAILED
	Requested   int           `json:"requested"`
	Created     int           `json:"created"`
	TerminalIDs []string      `json:"terminal_ids"`
	Failures    []UnitFailure `json:"failures,omitempty"`
	TotalCents  int64         `json:"total_cents"`
}

// Summary is the review-step projection of the flow so far.
type Summary struct {
	Quantity      int           `json:"quantity"`
	NamePrefix    string        `json:"name_prefix"`
	ShippingSpeed ShippingSpeed `json:"shipping_speed"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TotalCents    int64         `json:"total_cents"`
	TermsAccepted bool          `json:"terms_accepted"`
}

// Session is one open purchase flow. Step N+1 is unreachable until step N's
// snapshot validated; backward navigation is always allowed and jumping to an
// earlier step is allowed only from review.
type Session struct {
	mu sync.Mutex

	ID      string
	VenueID string

	currentStep   Step
	configure     *ConfigureData
	shipping      *ShippingData
	payment       *PaymentData
	prefill       *ShippingData
	termsAccepted bool
	completed     bool

	db     interfaces.DatabaseService
	idGen  interfaces.IDGenerator
	logger interfaces.Logger
}

// CurrentStep returns the step the flow is on.
func (s *Session) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

// PrefilledShipping returns the venue-profile prefill for the shipping step,
// or nil when none was available.
func (s *Session) PrefilledShipping() *ShippingData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefill == nil {
		return nil
	}
	copied := *s.prefill
	return &copied
}

// SubmitConfigure validates and snapshots step 1, advancing to shipping.
func (s *Session) SubmitConfigure(data ConfigureData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.currentStep != StepConfigure {
		return ErrWrongStep
	}

	var errs ValidationErrors
	if data.Quantity < 1 || data.Quantity > 10 {
		errs = append(errs, FieldError{"quantity", "must be between 1 and 10"})
	}
	prefix := strings.TrimSpace(data.NamePrefix)
	if len(prefix) < 3 || len(prefix) > 50 {
		errs = append(errs, FieldError{"name_prefix", "must be 3 to 50 characters"})
	}
	if len(errs) > 0 {
		return errs
	}

	data.NamePrefix = prefix
	s.configure = &data
	s.currentStep = StepShipping
	return nil
}

// SubmitShipping validates and snapshots step 2, advancing to payment.
func (s *Session) SubmitShipping(data ShippingData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.currentStep != StepShipping {
		return ErrWrongStep
	}

	var errs ValidationErrors
	if strings.TrimSpace(data.ContactName) == "" {
		errs = append(errs, FieldError{"contact_name", "is required"})
	}
	if !strings.Contains(data.ContactEmail, "@") {
		errs = append(errs, FieldError{"contact_email", "must be a valid email"})
	}
	if strings.TrimSpace(data.AddressLine) == "" {
		errs = append(errs, FieldError{"address_line", "is required"})
	}
	if strings.TrimSpace(data.City) == "" {
		errs = append(errs, FieldError{"city", "is required"})
	}
	if strings.TrimSpace(data.PostalCode) == "" {
		errs = append(errs, FieldError{"postal_code", "is required"})
	}
	if data.Speed == "" {
		data.Speed = ShippingStandard
	}
	if !ValidShippingSpeed(data.Speed) {
		errs = append(errs, FieldError{"speed", "unknown shipping speed"})
	}
	if len(errs) > 0 {
		return errs
	}

	s.shipping = &data
	s.currentStep = StepPayment
	return nil
}

var (
	cardNumberRe = regexp.MustCompile(`^\d{16}$`)
	cardExpiryRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cardCVVRe    = regexp.MustCompile(`^\d{3,4}$`)
)

// SubmitPayment validates and snapshots step 3, advancing to review.
func (s *Session) SubmitPayment(data PaymentData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.currentStep != StepPayment {
		return ErrWrongStep
	}

	var errs ValidationErrors
	if !ValidPaymentMethod(data.Method) {
		errs = append(errs, FieldError{"method", "unknown payment method"})
	}
	if data.Method == PaymentCard {
		if !cardNumberRe.MatchString(strings.ReplaceAll(data.CardNumber, " ", "")) {
			errs = append(errs, FieldError{"card_number", "must be 16 digits"})
		}
		if !cardExpiryRe.MatchString(data.CardExpiry) {
			errs = append(errs, FieldError{"card_expiry", "must be MM/YY"})
		}
		if !cardCVVRe.MatchString(data.CardCVV) {
			errs = append(errs, FieldError{"card_cvv", "must be 3 or 4 digits"})
		}
		if strings.TrimSpace(data.CardHolder) == "" {
			errs = append(errs, FieldError{"card_holder", "is required"})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	s.payment = &data
	s.currentStep = StepReview
	return nil
}

// Back moves one step towards configuration.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.currentStep <= StepConfigure {
		return ErrWrongStep
	}
	s.currentStep--
	return nil
}

// Edit jumps back to a completed step; only the review step offers this.
func (s *Session) Edit(target Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.currentStep != StepReview {
		return ErrEditFromReview
	}
	if target < StepConfigure || target >= StepReview {
		return ErrWrongStep
	}
	s.currentStep = target
	return nil
}

// AcceptTerms records the terms checkbox from the review step.
func (s *Session) AcceptTerms(accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.termsAccepted = accepted
}

// Review returns the derived summary; it requires every snapshot.
func (s *Session) Review() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configure == nil || s.shipping == nil || s.payment == nil {
		return nil, ErrStepIncomplete
	}
	return &Summary{
		Quantity:      s.configure.Quantity,
		NamePrefix:    s.configure.NamePrefix,
		ShippingSpeed: s.shipping.Speed,
		PaymentMethod: s.payment.Method,
		TotalCents:    TotalCents(s.configure.Quantity, s.shipping.Speed),
		TermsAccepted: s.termsAccepted,
	}, nil
}

// Complete finalizes the purchase: quantity independent terminal creations,
// sequential, each failure isolated. Units already created are never rolled
// back.
func (s *Session) Complete(ctx context.Context) (*CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return nil, ErrAlreadyCompleted
	}
	if s.configure == nil || s.shipping == nil || s.payment == nil {
		return nil, ErrStepIncomplete
	}
	if !s.termsAccepted {
		return nil, ErrTermsNotAccepted
	}

	total := TotalCents(s.configure.Quantity, s.shipping.Speed)
	result := &CompletionResult{
		OrderID:    s.idGen.NewID(),
		Requested:  s.configure.Quantity,
		TotalCents: total,
	}

	for i := 0; i < s.configure.Quantity; i++ {
		select {
		case <-ctx.Done():
			result.Failures = append(result.Failures, UnitFailure{Index: i, Error: ctx.Err().Error()})
			continue
		default:
		}

		terminal := &models.Terminal{
			ID:           s.idGen.NewID(),
			VenueID:      s.VenueID,
			Name:         fmt.Sprintf("%s %d", s.configure.NamePrefix, i+1),
			SerialNumber: fmt.Sprintf("TPV-%s", s.idGen.NewID()[:8]),
			Model:        "TPV-900",
		}
		if err := s.db.CreateTerminal(terminal); err != nil {
			s.logger.Warnf("purchase %s: unit %d creation failed: %v", result.OrderID, i, err)
			result.Failures = append(result.Failures, UnitFailure{Index: i, Error: err.Error()})
			continue
		}
		result.Created++
		result.TerminalIDs = append(result.TerminalIDs, terminal.ID)
	}

	switch {
	case result.Created == result.Requested:
		result.Status = models.OrderStatusCompleted
	case result.Created > 0:
		result.Status = models.OrderStatusPartial
	default:
		result.Status = models.OrderStatusFailed
	}

	now := time.Now()
	order := &models.PurchaseOrder{
		ID:            result.OrderID,
		VenueID:       s.VenueID,
		Quantity:      result.Requested,
		UnitsCreated:  result.Created,
		UnitPrice:     UnitPriceCents,
		ShippingSpeed: string(s.shipping.Speed),
		TotalAmount:   total,
		PaymentMethod: string(s.payment.Method),
		Status:        result.Status,
		CompletedAt:   &now,
	}
	if err := s.db.CreatePurchaseOrder(order); err != nil {
		s.logger.Errorf("purchase %s: failed to persist order: %v", result.OrderID, err)
	}

	s.completed = true
	return result, nil
}
