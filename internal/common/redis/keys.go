// internal/common/redis/keys.go
package redis

import "fmt"

// Redis key patterns used by the fleet bridge.
const (
	// Terminal presence (TTL-guarded; existence means online)
	TerminalPresencePattern = "terminal_presence:%s"

	// Last reported device status snapshot
	TerminalStatusPattern = "terminal_status:%s"
)

// KeyGenerator builds namespaced cache keys.
type KeyGenerator struct{}

func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// TerminalPresence is the liveness key for one terminal.
func (k *KeyGenerator) TerminalPresence(terminalID string) string {
	return fmt.Sprintf(TerminalPresencePattern, terminalID)
}

// TerminalStatus is the last-status snapshot key for one terminal.
func (k *KeyGenerator) TerminalStatus(terminalID string) string {
	return fmt.Sprintf(TerminalStatusPattern, terminalID)
}

// Keys is the shared key generator instance.
var Keys = NewKeyGenerator()

func TerminalPresence(terminalID string) string {
	return Keys.TerminalPresence(terminalID)
}

func TerminalStatus(terminalID string) string {
	return Keys.TerminalStatus(terminalID)
}

// AllTerminalPresence matches every presence key.
func AllTerminalPresence() string {
	return "terminal_presence:*"
}
