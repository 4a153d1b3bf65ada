package wizard

import (
	"errors"
	"sync"

	"tpv-fleet/internal/interfaces"
)

var ErrSessionNotFound = errors.New("purchase session not found")

// Manager owns the open purchase sessions. Abandoning or completing a flow
// discards its state; reopening always starts fresh.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	db     interfaces.DatabaseService
	idGen  interfaces.IDGenerator
	logger interfaces.Logger
}

func NewManager(db interfaces.DatabaseService, idGen interfaces.IDGenerator, logger interfaces.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		db:       db,
		idGen:    idGen,
		logger:   logger,
	}
}

// Start opens a new flow for a venue. When a profile is given and carries
// every required field, the shipping step is pre-filled and flagged as such.
func (m *Manager) Start(venueID string, profile *VenueProfile) *Session {
	session := &Session{
		ID:          m.idGen.NewID(),
		VenueID:     venueID,
		currentStep: StepConfigure,
		db:          m.db,
		idGen:       m.idGen,
		logger:      m.logger,
	}

	if profile != nil {
		session.prefill = &ShippingData{
			ContactName:  profile.ContactName,
			ContactEmail: profile.ContactEmail,
			ContactPhone: profile.ContactPhone,
			AddressLine:  profile.AddressLine,
			City:         profile.City,
			PostalCode:   profile.PostalCode,
			Country:      profile.Country,
			Speed:        ShippingStandard,
			WasPreFilled: profile.complete(),
		}
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session
}

// Get looks an open session up.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close discards a session and all of its step state.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count reports open sessions for the ops stats endpoint.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
