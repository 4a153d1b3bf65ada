package interfaces

import (
	"context"
	"time"

	"tpv-fleet/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DatabaseService persists terminals, command history and purchase orders.
type DatabaseService interface {
	// Terminal
	GetTerminal(id string) (*models.Terminal, error)
	CreateTerminal(terminal *models.Terminal) error
	UpdateTerminal(terminal *models.Terminal) error
	ListTerminals(venueID string) ([]models.Terminal, error)
	MarkTerminalActivated(id string) error

	// Command history
	CreateCommandRecord(record *models.CommandRecord) error
	UpdateCommandStatus(record *models.CommandRecord, status, errMsg string) error
	UpdateCommandStatusByInvocation(invocationID, status, message string) error
	GetCommandHistory(venueID, terminalID string, page, pageSize int, status string) ([]models.CommandRecord, int64, error)

	// Purchase orders
	CreatePurchaseOrder(order *models.PurchaseOrder) error
}

// CacheService is the presence/state cache in front of Redis.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MessagePublisher is the MQTT push channel to the terminal fleet.
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// ConfigProvider exposes the runtime knobs the core components need.
type ConfigProvider interface {
	GetHeartbeatTimeout() time.Duration
	GetDebounceInterval() time.Duration
	GetPresenceTTL() time.Duration
	GetLogLevel() string
}

// Logger is the narrow logging surface used by core packages.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// TimerHandle is a cancellable scheduled task. Cancel reports whether the
// task was stopped before firing and is safe to call more than once.
type TimerHandle interface {
	Cancel() bool
}

// Scheduler owns every debounce and heartbeat-fallback timer so cancellation
// is a first-class operation rather than a hand-tracked time.Timer map.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) TimerHandle
}

// IDGenerator produces invocation and order identifiers.
type IDGenerator interface {
	NewID() string
}
