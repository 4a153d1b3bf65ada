package wizard_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tpv-fleet/internal/di"
	"tpv-fleet/internal/models"
	"tpv-fleet/internal/wizard"
)

func newManager(t *testing.T) (*wizard.Manager, *di.MockDatabaseService) {
	t.Helper()
	db := di.NewMockDatabaseService()
	return wizard.NewManager(db, di.NewMockIDGenerator(), di.NewMockLogger()), db
}

func validConfigure() wizard.ConfigureData {
	return wizard.ConfigureData{Quantity: 3, NamePrefix: "Bar Terminal"}
}

func validShipping() wizard.ShippingData {
	return wizard.ShippingData{
		ContactName:  "Ana Ruiz",
		ContactEmail: "ana@example.com",
		ContactPhone: "+34 600 000 000",
		AddressLine:  "Calle Mayor 1",
		City:         "Madrid",
		PostalCode:   "28001",
		Country:      "ES",
		Speed:        wizard.ShippingExpress,
	}
}

func validPayment() wizard.PaymentData {
	return wizard.PaymentData{
		Method:     wizard.PaymentCard,
		CardNumber: "4111 1111 1111 1111",
		CardExpiry: "12/27",
		CardCVV:    "123",
		CardHolder: "Ana Ruiz",
	}
}

// advance drives a session to the review step with valid data.
func advance(t *testing.T, s *wizard.Session) {
	t.Helper()
	if err := s.SubmitConfigure(validConfigure()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := s.SubmitShipping(validShipping()); err != nil {
		t.Fatalf("shipping: %v", err)
	}
	if err := s.SubmitPayment(validPayment()); err != nil {
		t.Fatalf("payment: %v", err)
	}
}

func TestStepGating(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)

	if err := s.SubmitShipping(validShipping()); !errors.Is(err, wizard.ErrWrongStep) {
		t.Fatalf("shipping before configure must fail, got %v", err)
	}
	if err := s.SubmitPayment(validPayment()); !errors.Is(err, wizard.ErrWrongStep) {
		t.Fatalf("payment before configure must fail, got %v", err)
	}
	if _, err := s.Review(); !errors.Is(err, wizard.ErrStepIncomplete) {
		t.Fatalf("review without snapshots must fail, got %v", err)
	}
}

func TestConfigureValidation(t *testing.T) {
	cases := []struct {
		name  string
		data  wizard.ConfigureData
		field string
	}{
		{"quantity zero", wizard.ConfigureData{Quantity: 0, NamePrefix: "Bar"}, "quantity"},
		{"quantity eleven", wizard.ConfigureData{Quantity: 11, NamePrefix: "Bar"}, "quantity"},
		{"prefix too short", wizard.ConfigureData{Quantity: 1, NamePrefix: "ab"}, "name_prefix"},
		{"prefix whitespace only", wizard.ConfigureData{Quantity: 1, NamePrefix: "   "}, "name_prefix"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newManager(t)
			s := m.Start("venue-1", nil)

			err := s.SubmitConfigure(tc.data)
			var verrs wizard.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			found := false
			for _, fe := range verrs {
				if fe.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tc.field, verrs)
			}
			if s.CurrentStep() != wizard.StepConfigure {
				t.Error("failed validation must not advance the step")
			}
		})
	}
}

func TestShippingValidation(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)
	if err := s.SubmitConfigure(validConfigure()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	data := validShipping()
	data.ContactEmail = "not-an-email"
	data.City = ""
	err := s.SubmitShipping(data)
	var verrs wizard.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 field errors, got %v", verrs)
	}

	// Omitting the speed defaults to standard rather than failing.
	data = validShipping()
	data.Speed = ""
	if err := s.SubmitShipping(data); err != nil {
		t.Fatalf("empty speed should default, got %v", err)
	}
}

func TestPaymentValidation(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)
	if err := s.SubmitConfigure(validConfigure()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := s.SubmitShipping(validShipping()); err != nil {
		t.Fatalf("shipping: %v", err)
	}

	t.Run("card details validated", func(t *testing.T) {
		data := validPayment()
		data.CardNumber = "1234"
		data.CardExpiry = "13/27"
		data.CardCVV = "12"
		err := s.SubmitPayment(data)
		var verrs wizard.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected validation errors, got %v", err)
		}
		if len(verrs) != 3 {
			t.Errorf("expected 3 field errors, got %v", verrs)
		}
	})

	t.Run("bank needs no card details", func(t *testing.T) {
		if err := s.SubmitPayment(wizard.PaymentData{Method: wizard.PaymentBank}); err != nil {
			t.Fatalf("bank payment should pass, got %v", err)
		}
	})
}

func TestBackAndEdit(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)

	if err := s.Back(); !errors.Is(err, wizard.ErrWrongStep) {
		t.Fatalf("back from step 1 must fail, got %v", err)
	}

	if err := s.SubmitConfigure(validConfigure()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := s.Edit(wizard.StepConfigure); !errors.Is(err, wizard.ErrEditFromReview) {
		t.Fatalf("edit is review-only, got %v", err)
	}
	if err := s.Back(); err != nil {
		t.Fatalf("back from step 2: %v", err)
	}
	if s.CurrentStep() != wizard.StepConfigure {
		t.Fatalf("expected step 1, got %d", s.CurrentStep())
	}

	// Resubmit and run to review, then jump back to shipping.
	advance(t, s)
	if err := s.Edit(wizard.StepReview); !errors.Is(err, wizard.ErrWrongStep) {
		t.Fatalf("edit target must be an earlier step, got %v", err)
	}
	if err := s.Edit(wizard.StepShipping); err != nil {
		t.Fatalf("edit to shipping: %v", err)
	}
	if s.CurrentStep() != wizard.StepShipping {
		t.Fatalf("expected step 2, got %d", s.CurrentStep())
	}
}

func TestPricing(t *testing.T) {
	cases := []struct {
		quantity int
		speed    wizard.ShippingSpeed
		want     int64
	}{
		{1, wizard.ShippingStandard, 40484},
		{3, wizard.ShippingExpress, 123192},
		{10, wizard.ShippingPriority, 408900},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx %s", tc.quantity, tc.speed), func(t *testing.T) {
			if got := wizard.TotalCents(tc.quantity, tc.speed); got != tc.want {
				t.Errorf("TotalCents(%d, %s) = %d, want %d", tc.quantity, tc.speed, got, tc.want)
			}
		})
	}
}

func TestReviewSummary(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)
	advance(t, s)

	summary, err := s.Review()
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if summary.Quantity != 3 || summary.ShippingSpeed != wizard.ShippingExpress {
		t.Errorf("summary does not reflect snapshots: %+v", summary)
	}
	if summary.TotalCents != 123192 {
		t.Errorf("expected total 123192 cents, got %d", summary.TotalCents)
	}
	if summary.TermsAccepted {
		t.Error("terms start unaccepted")
	}
}

func TestCompleteRequiresTerms(t *testing.T) {
	m, _ := newManager(t)
	s := m.Start("venue-1", nil)
	advance(t, s)

	if _, err := s.Complete(context.Background()); !errors.Is(err, wizard.ErrTermsNotAccepted) {
		t.Fatalf("expected ErrTermsNotAccepted, got %v", err)
	}
}

func TestCompleteCreatesTerminals(t *testing.T) {
	m, db := newManager(t)
	s := m.Start("venue-1", nil)
	advance(t, s)
	s.AcceptTerms(true)

	result, err := s.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Status != models.OrderStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", result.Status)
	}
	if result.Created != 3 || len(result.TerminalIDs) != 3 {
		t.Errorf("expected 3 terminals, got %+v", result)
	}
	if result.TotalCents != 123192 {
		t.Errorf("expected total 123192 cents, got %d", result.TotalCents)
	}

	terminals, _ := db.ListTerminals("venue-1")
	if len(terminals) != 3 {
		t.Fatalf("expected 3 terminal records, got %d", len(terminals))
	}
	names := make(map[string]bool)
	for _, term := range terminals {
		names[term.Name] = true
	}
	for i := 1; i <= 3; i++ {
		if !names[fmt.Sprintf("Bar Terminal %d", i)] {
			t.Errorf("missing terminal named 'Bar Terminal %d'", i)
		}
	}
	if len(db.Orders) != 1 || db.Orders[0].Status != models.OrderStatusCompleted {
		t.Errorf("expected one completed order, got %+v", db.Orders)
	}

	if _, err := s.Complete(context.Background()); !errors.Is(err, wizard.ErrAlreadyCompleted) {
		t.Fatalf("double complete must fail, got %v", err)
	}
}

func TestCompletePartialFailure(t *testing.T) {
	m, db := newManager(t)
	s := m.Start("venue-1", nil)
	advance(t, s)
	s.AcceptTerms(true)

	// Fail the second unit only; the other creations must go through.
	calls := 0
	db.CreateTerminalHook = func(terminal *models.Terminal) error {
		calls++
		if calls == 2 {
			return errors.New("serial collision")
		}
		return nil
	}

	result, err := s.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Status != models.OrderStatusPartial {
		t.Errorf("expected PARTIAL, got %s", result.Status)
	}
	if result.Created != 2 || result.Requested != 3 {
		t.Errorf("expected 2 of 3 created, got %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Index != 1 {
		t.Errorf("expected one failure at index 1, got %+v", result.Failures)
	}
	if db.Orders[0].UnitsCreated != 2 {
		t.Errorf("order must record 2 units created, got %d", db.Orders[0].UnitsCreated)
	}
}

func TestCompleteAllFailed(t *testing.T) {
	m, db := newManager(t)
	s := m.Start("venue-1", nil)
	advance(t, s)
	s.AcceptTerms(true)

	db.CreateTerminalHook = func(*models.Terminal) error {
		return errors.New("database unavailable")
	}

	result, err := s.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete reports per-unit failures, not an error: %v", err)
	}
	if result.Status != models.OrderStatusFailed {
		t.Errorf("expected FAILED, got %s", result.Status)
	}
	if len(result.Failures) != 3 {
		t.Errorf("expected 3 failures, got %+v", result.Failures)
	}
}

func TestPrefillFromVenueProfile(t *testing.T) {
	m, _ := newManager(t)

	t.Run("complete profile prefills", func(t *testing.T) {
		s := m.Start("venue-1", &wizard.VenueProfile{
			ContactName:  "Ana Ruiz",
			ContactEmail: "ana@example.com",
			ContactPhone: "+34 600 000 000",
			AddressLine:  "Calle Mayor 1",
			City:         "Madrid",
			PostalCode:   "28001",
			Country:      "ES",
		})
		prefill := s.PrefilledShipping()
		if prefill == nil || !prefill.WasPreFilled {
			t.Fatalf("expected a pre-filled shipping form, got %+v", prefill)
		}
		if prefill.Speed != wizard.ShippingStandard {
			t.Errorf("prefill defaults to standard shipping, got %s", prefill.Speed)
		}
	})

	t.Run("partial profile is not flagged", func(t *testing.T) {
		s := m.Start("venue-1", &wizard.VenueProfile{ContactName: "Ana Ruiz"})
		prefill := s.PrefilledShipping()
		if prefill == nil {
			t.Fatal("partial profiles still seed the form")
		}
		if prefill.WasPreFilled {
			t.Error("an incomplete profile must not be flagged pre-filled")
		}
	})

	t.Run("no profile", func(t *testing.T) {
		s := m.Start("venue-1", nil)
		if s.PrefilledShipping() != nil {
			t.Error("no profile means no prefill")
		}
	})
}

func TestManagerLifecycle(t *testing.T) {
	m, _ := newManager(t)

	s := m.Start("venue-1", nil)
	if got, err := m.Get(s.ID); err != nil || got != s {
		t.Fatalf("expected to find session, got %v %v", got, err)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 open session, got %d", m.Count())
	}

	m.Close(s.ID)
	if _, err := m.Get(s.ID); !errors.Is(err, wizard.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	// Reopening starts from scratch.
	s2 := m.Start("venue-1", nil)
	if s2.CurrentStep() != wizard.StepConfigure {
		t.Error("a new session starts on step 1")
	}
}
