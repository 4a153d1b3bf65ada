package toggle

import (
	"sync"

	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/interfaces"
)

// Manager hands out one controller per (terminal, toggle kind) and owns
// their teardown.
type Manager struct {
	mu          sync.Mutex
	controllers map[string]*Controller

	dispatcher *dispatch.Dispatcher
	scheduler  interfaces.Scheduler
	config     interfaces.ConfigProvider
	logger     interfaces.Logger
}

func NewManager(
	dispatcher *dispatch.Dispatcher,
	scheduler interfaces.Scheduler,
	config interfaces.ConfigProvider,
	logger interfaces.Logger,
) *Manager {
	return &Manager{
		controllers: make(map[string]*Controller),
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		config:      config,
		logger:      logger,
	}
}

// Controller returns the controller for (terminal, kind), creating it on
// first use.
func (m *Manager) Controller(terminalID, venueID string, kind Kind) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := terminalID + "|" + string(kind)
	ctl, ok := m.controllers[key]
	if !ok {
		logger := m.logger
		ctl = NewController(terminalID, venueID, kind, m.dispatcher, m.scheduler, m.config, m.logger,
			func(kind Kind, desired bool) {
				logger.Infof("toggle %s on %s settled to %v, payload required", kind, terminalID, desired)
			})
		m.controllers[key] = ctl
	}
	return ctl
}

// Count reports live controllers for the ops stats endpoint.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

// CloseAll tears every controller down, cancelling scheduled debounce work.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ctl := range m.controllers {
		ctl.Close()
		delete(m.controllers, key)
	}
}
