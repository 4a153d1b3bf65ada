package models

import (
	"time"

	"gorm.io/gorm"
)

// Terminal is a point-of-sale device managed by the fleet bridge.
type Terminal struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	VenueID         string         `gorm:"size:64;not null;index" json:"venue_id"`
	Name            string         `gorm:"size:100;not null" json:"name"`
	SerialNumber    string         `gorm:"size:50;uniqueIndex" json:"serial_number"`
	Model           string         `gorm:"size:50" json:"model"`
	Locked          bool           `gorm:"default:false" json:"locked"`
	MaintenanceMode bool           `gorm:"default:false" json:"maintenance_mode"`
	Activated       bool           `gorm:"default:false" json:"activated"`
	ActivatedAt     *time.Time     `json:"activated_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// CommandRecord stores one remote command dispatched to a terminal and its
// lifecycle as reported back by the device.
type CommandRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	InvocationID string         `gorm:"size:64;not null;uniqueIndex" json:"invocation_id"`
	TerminalID   string         `gorm:"size:64;not null;index" json:"terminal_id"`
	VenueID      string         `gorm:"size:64;not null;index" json:"venue_id"`
	CommandType  string         `gorm:"size:32;not null;index" json:"command_type"`
	Priority     string         `gorm:"size:10;not null" json:"priority"`
	Payload      JSON           `gorm:"type:jsonb" json:"payload"`
	Status       string         `gorm:"size:24;not null;index" json:"status"`
	ErrorMessage string         `gorm:"size:500" json:"error_message"`
	RequestTime  time.Time      `gorm:"not null;index" json:"request_time"`
	ResponseTime *time.Time     `json:"response_time"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// PurchaseOrder records one completed (or partially completed) terminal
// purchase flow.
type PurchaseOrder struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	VenueID       string     `gorm:"size:64;not null;index" json:"venue_id"`
	Quantity      int        `gorm:"not null" json:"quantity"`
	UnitsCreated  int        `gorm:"not null" json:"units_created"`
	UnitPrice     int64      `gorm:"not null" json:"unit_price"`     // cents
	ShippingSpeed string     `gorm:"size:16;not null" json:"shipping_speed"`
	TotalAmount   int64      `gorm:"not null" json:"total_amount"` // cents, tax included
	PaymentMethod string     `gorm:"size:16;not null" json:"payment_method"`
	Status        string     `gorm:"size:16;not null;index" json:"status"` // COMPLETED, PARTIAL, FAILED
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JSON maps onto jsonb columns (GORM v2).
type JSON map[string]interface{}

// Command lifecycle statuses. The bridge itself only writes QUEUED, SENT,
// COMPLETED_FAILED and EXPIRED; the rest arrive through device result
// messages.
const (
	StatusQueued           = "QUEUED"
	StatusSent             = "SENT"
	StatusReceived         = "RECEIVED"
	StatusExecuting        = "EXECUTING"
	StatusCompletedSuccess = "COMPLETED_SUCCESS"
	StatusCompletedPartial = "COMPLETED_PARTIAL"
	StatusCompletedFailed  = "COMPLETED_FAILED"
	StatusRejected         = "COMPLETED_REJECTED"
	StatusTimeout          = "COMPLETED_TIMEOUT"
	StatusExpired          = "EXPIRED"
	StatusCancelled        = "CANCELLED"
)

// Purchase order statuses.
const (
	OrderStatusCompleted = "COMPLETED"
	OrderStatusPartial   = "PARTIAL"
	OrderStatusFailed    = "FAILED"
)

// Terminal connection states as carried by connection messages.
const (
	ConnectionStateOnline  = "ONLINE"
	ConnectionStateOffline = "OFFLINE"
)

// CommandMessage is published to a terminal's command topic.
type CommandMessage struct {
	InvocationID string                 `json:"invocationId"`
	CommandType  string                 `json:"commandType"`
	Priority     string                 `json:"priority"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Timestamp    string                 `json:"timestamp"`
}

// StatusMessage is the terminal's heartbeat: a push confirming its current
// state. Receipt is the authoritative signal that an awaited transition took
// effect.
type StatusMessage struct {
	TerminalID      string `json:"terminalId"`
	Timestamp       string `json:"timestamp"`
	Locked          bool   `json:"locked"`
	MaintenanceMode bool   `json:"maintenanceMode"`
	AppVersion      string `json:"appVersion"`
	BatteryLevel    int    `json:"batteryLevel"`
}

// ConnectionMessage announces a terminal going on or off the broker.
type ConnectionMessage struct {
	TerminalID      string `json:"terminalId"`
	Timestamp       string `json:"timestamp"`
	ConnectionState string `json:"connectionState"`
}

// ResultMessage reports the terminal-side outcome of a command.
type ResultMessage struct {
	TerminalID   string `json:"terminalId"`
	InvocationID string `json:"invocationId"`
	Status       string `json:"status"` // RECEIVED, EXECUTING, COMPLETED_*
	Message      string `json:"message,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// IsValidConnectionState checks connection message payloads.
func IsValidConnectionState(state string) bool {
	return state == ConnectionStateOnline || state == ConnectionStateOffline
}
