package di

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gorm.io/gorm"
)

// =============================================================================
// Mock Database Service
// =============================================================================

type MockDatabaseService struct {
	mu        sync.Mutex
	Terminals map[string]*models.Terminal
	Records   []*models.CommandRecord
	Orders    []*models.PurchaseOrder

	// CreateTerminalHook lets tests inject per-call failures.
	CreateTerminalHook func(*models.Terminal) error
}

func NewMockDatabaseService() *MockDatabaseService {
	return &MockDatabaseService{Terminals: make(map[string]*models.Terminal)}
}

func (m *MockDatabaseService) GetTerminal(id string) (*models.Terminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.Terminals[id]; ok {
		return t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockDatabaseService) CreateTerminal(terminal *models.Terminal) error {
	if m.CreateTerminalHook != nil {
		if err := m.CreateTerminalHook(terminal); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Terminals[terminal.ID] = terminal
	return nil
}

func (m *MockDatabaseService) UpdateTerminal(terminal *models.Terminal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Terminals[terminal.ID] = terminal
	return nil
}

func (m *MockDatabaseService) ListTerminals(venueID string) ([]models.Terminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Terminal, 0)
	for _, t := range m.Terminals {
		if t.VenueID == venueID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *MockDatabaseService) MarkTerminalActivated(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Terminals[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	t.Activated = true
	t.ActivatedAt = &now
	return nil
}

func (m *MockDatabaseService) CreateCommandRecord(record *models.CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = uint(len(m.Records) + 1)
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockDatabaseService) UpdateCommandStatus(record *models.CommandRecord, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.Status = status
	record.ErrorMessage = errMsg
	now := time.Now()
	record.ResponseTime = &now
	return nil
}

func (m *MockDatabaseService) UpdateCommandStatusByInvocation(invocationID, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.InvocationID == invocationID {
			r.Status = status
			r.ErrorMessage = message
			now := time.Now()
			r.ResponseTime = &now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockDatabaseService) GetCommandHistory(venueID, terminalID string, page, pageSize int, status string) ([]models.CommandRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]models.CommandRecord, 0)
	for _, r := range m.Records {
		if r.VenueID == venueID && r.TerminalID == terminalID && (status == "" || r.Status == status) {
			matched = append(matched, *r)
		}
	}
	total := int64(len(matched))

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []models.CommandRecord{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *MockDatabaseService) CreatePurchaseOrder(order *models.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, order)
	return nil
}

// Test helpers

func (m *MockDatabaseService) LastRecord() *models.CommandRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Records) == 0 {
		return nil
	}
	return m.Records[len(m.Records)-1]
}

// =============================================================================
// Mock Cache Service
// =============================================================================

type MockCacheService struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{data: make(map[string]string)}
}

func (m *MockCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (m *MockCacheService) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MockCacheService) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *MockCacheService) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// =============================================================================
// Mock Message Publisher
// =============================================================================

type MockMessage struct {
	Topic   string
	Payload interface{}
}

type MockMessagePublisher struct {
	mu            sync.Mutex
	Published     []MockMessage
	Subscriptions map[string]mqtt.MessageHandler
	Connected     bool

	// PublishErr fails every Publish when set.
	PublishErr error
}

func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{
		Subscriptions: make(map[string]mqtt.MessageHandler),
		Connected:     true,
	}
}

func (m *MockMessagePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, MockMessage{Topic: topic, Payload: payload})
	return nil
}

func (m *MockMessagePublisher) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions[topic] = callback
	return nil
}

func (m *MockMessagePublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Connected
}

func (m *MockMessagePublisher) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connected = false
}

func (m *MockMessagePublisher) PublishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

func (m *MockMessagePublisher) LastMessage() *MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Published) == 0 {
		return nil
	}
	return &m.Published[len(m.Published)-1]
}

// =============================================================================
// Mock Scheduler
// =============================================================================

// MockTask is a scheduled callback under test control.
type MockTask struct {
	mu        sync.Mutex
	Delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (t *MockTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// Fire runs the callback unless the task was cancelled or already ran.
func (t *MockTask) Fire() {
	t.mu.Lock()
	if t.cancelled || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

func (t *MockTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// MockScheduler records scheduled tasks; tests fire them explicitly instead
// of waiting out real timers.
type MockScheduler struct {
	mu    sync.Mutex
	Tasks []*MockTask
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

func (s *MockScheduler) Schedule(d time.Duration, fn func()) interfaces.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &MockTask{Delay: d, fn: fn}
	s.Tasks = append(s.Tasks, task)
	return task
}

func (s *MockScheduler) LastTask() *MockTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Tasks) == 0 {
		return nil
	}
	return s.Tasks[len(s.Tasks)-1]
}

func (s *MockScheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Tasks)
}

// =============================================================================
// Mock Config Provider
// =============================================================================

type MockConfigProvider struct {
	HeartbeatTimeout time.Duration
	DebounceInterval time.Duration
	PresenceTTL      time.Duration
	LogLevel         string
}

func NewMockConfigProvider() *MockConfigProvider {
	return &MockConfigProvider{
		HeartbeatTimeout: 60 * time.Second,
		DebounceInterval: 500 * time.Millisecond,
		PresenceTTL:      90 * time.Second,
		LogLevel:         "debug",
	}
}

func (m *MockConfigProvider) GetHeartbeatTimeout() time.Duration { return m.HeartbeatTimeout }
func (m *MockConfigProvider) GetDebounceInterval() time.Duration { return m.DebounceInterval }
func (m *MockConfigProvider) GetPresenceTTL() time.Duration      { return m.PresenceTTL }
func (m *MockConfigProvider) GetLogLevel() string                { return m.LogLevel }

// =============================================================================
// Mock Logger
// =============================================================================

type MockLogger struct {
	mu   sync.Mutex
	logs []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) append(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, fmt.Sprintf(level+": "+format, args...))
}

func (m *MockLogger) Debug(args ...interface{})                 { m.append("DEBUG", "%v", args) }
func (m *MockLogger) Debugf(format string, args ...interface{}) { m.append("DEBUG", format, args...) }
func (m *MockLogger) Info(args ...interface{})                  { m.append("INFO", "%v", args) }
func (m *MockLogger) Infof(format string, args ...interface{})  { m.append("INFO", format, args...) }
func (m *MockLogger) Warn(args ...interface{})                  { m.append("WARN", "%v", args) }
func (m *MockLogger) Warnf(format string, args ...interface{})  { m.append("WARN", format, args...) }
func (m *MockLogger) Error(args ...interface{})                 { m.append("ERROR", "%v", args) }
func (m *MockLogger) Errorf(format string, args ...interface{}) { m.append("ERROR", format, args...) }
func (m *MockLogger) Fatal(args ...interface{})                 { m.append("FATAL", "%v", args) }
func (m *MockLogger) Fatalf(format string, args ...interface{}) { m.append("FATAL", format, args...) }

func (m *MockLogger) ContainsLog(substring string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.logs {
		if strings.Contains(entry, substring) {
			return true
		}
	}
	return false
}

// =============================================================================
// Mock ID Generator
// =============================================================================

// MockIDGenerator yields deterministic sequential identifiers.
type MockIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (g *MockIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%08d", g.next)
}
