package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"

	"tpv-fleet/internal/dispatch"
	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/models"

	rediskeys "tpv-fleet/internal/common/redis"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topics the resolver listens on.
const (
	StatusTopicFilter     = "tpv/v1/+/status"
	ConnectionTopicFilter = "tpv/v1/+/connection"
	ResultTopicFilter     = "tpv/v1/+/result"
)

// Resolver turns terminal push messages into presence updates and awaiting-
// state releases. The status push is the authoritative "it happened" signal;
// the dispatcher's fallback timer is only a safety net behind it.
type Resolver struct {
	dispatcher *dispatch.Dispatcher
	cache      interfaces.CacheService
	publisher  interfaces.MessagePublisher
	config     interfaces.ConfigProvider
	logger     interfaces.Logger
}

func NewResolver(
	dispatcher *dispatch.Dispatcher,
	cache interfaces.CacheService,
	publisher interfaces.MessagePublisher,
	config interfaces.ConfigProvider,
	logger interfaces.Logger,
) *Resolver {
	return &Resolver{
		dispatcher: dispatcher,
		cache:      cache,
		publisher:  publisher,
		config:     config,
		logger:     logger,
	}
}

// Start subscribes to the fleet topics.
func (r *Resolver) Start() error {
	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{StatusTopicFilter, r.handleStatus},
		{ConnectionTopicFilter, r.handleConnection},
		{ResultTopicFilter, r.handleResult},
	}

	for _, sub := range subscriptions {
		if err := r.publisher.Subscribe(sub.topic, 1, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
		r.logger.Infof("subscribed to topic: %s", sub.topic)
	}
	return nil
}

func (r *Resolver) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	var status models.StatusMessage
	if err := json.Unmarshal(msg.Payload(), &status); err != nil {
		r.logger.Warnf("dropping malformed status message on %s: %v", msg.Topic(), err)
		return
	}
	if status.TerminalID == "" {
		r.logger.Warnf("status message without terminalId on %s", msg.Topic())
		return
	}
	r.ApplyStatus(status)
}

// ApplyStatus refreshes presence and clears every awaiting entry for the
// terminal, cancelling the fallback timers behind them.
func (r *Resolver) ApplyStatus(status models.StatusMessage) {
	ctx := context.Background()

	if err := r.cache.Set(ctx, rediskeys.TerminalPresence(status.TerminalID), "1", r.config.GetPresenceTTL()); err != nil {
		r.logger.Warnf("failed to refresh presence for %s: %v", status.TerminalID, err)
	}
	if raw, err := json.Marshal(status); err == nil {
		if err := r.cache.Set(ctx, rediskeys.TerminalStatus(status.TerminalID), raw, r.config.GetPresenceTTL()); err != nil {
			r.logger.Debugf("failed to store status snapshot for %s: %v", status.TerminalID, err)
		}
	}

	r.dispatcher.ResolveHeartbeat(status.TerminalID)
}

func (r *Resolver) handleConnection(_ mqtt.Client, msg mqtt.Message) {
	var conn models.ConnectionMessage
	if err := json.Unmarshal(msg.Payload(), &conn); err != nil {
		r.logger.Warnf("dropping malformed connection message on %s: %v", msg.Topic(), err)
		return
	}
	if conn.TerminalID == "" || !models.IsValidConnectionState(conn.ConnectionState) {
		r.logger.Warnf("invalid connection message on %s", msg.Topic())
		return
	}
	r.ApplyConnection(conn)
}

// ApplyConnection tracks broker-level presence transitions.
func (r *Resolver) ApplyConnection(conn models.ConnectionMessage) {
	ctx := context.Background()

	switch conn.ConnectionState {
	case models.ConnectionStateOnline:
		if err := r.cache.Set(ctx, rediskeys.TerminalPresence(conn.TerminalID), "1", r.config.GetPresenceTTL()); err != nil {
			r.logger.Warnf("failed to mark %s online: %v", conn.TerminalID, err)
		}
		r.logger.Infof("terminal %s is ONLINE", conn.TerminalID)
	case models.ConnectionStateOffline:
		if err := r.cache.Del(ctx, rediskeys.TerminalPresence(conn.TerminalID)); err != nil {
			r.logger.Warnf("failed to mark %s offline: %v", conn.TerminalID, err)
		}
		r.logger.Infof("terminal %s is OFFLINE", conn.TerminalID)
	}
}

func (r *Resolver) handleResult(_ mqtt.Client, msg mqtt.Message) {
	var result models.ResultMessage
	if err := json.Unmarshal(msg.Payload(), &result); err != nil {
		r.logger.Warnf("dropping malformed result message on %s: %v", msg.Topic(), err)
		return
	}
	if result.InvocationID == "" {
		r.logger.Warnf("result message without invocationId on %s", msg.Topic())
		return
	}
	r.dispatcher.HandleResult(result)
}
