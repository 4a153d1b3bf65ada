// internal/services/implementations.go
package services

import (
	"context"
	"time"

	"tpv-fleet/internal/config"
	"tpv-fleet/internal/interfaces"
	"tpv-fleet/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// =============================================================================
// Database Service Implementation
// =============================================================================

type DatabaseServiceImpl struct {
	db *gorm.DB
}

func NewDatabaseService(db *gorm.DB) interfaces.DatabaseService {
	return &DatabaseServiceImpl{db: db}
}

func (d *DatabaseServiceImpl) GetTerminal(id string) (*models.Terminal, error) {
	var terminal models.Terminal
	err := d.db.First(&terminal, "id = ?", id).Error
	return &terminal, err
}

func (d *DatabaseServiceImpl) CreateTerminal(terminal *models.Terminal) error {
	return d.db.Create(terminal).Error
}

func (d *DatabaseServiceImpl) UpdateTerminal(terminal *models.Terminal) error {
	return d.db.Save(terminal).Error
}

func (d *DatabaseServiceImpl) ListTerminals(venueID string) ([]models.Terminal, error) {
	var terminals []models.Terminal
	err := d.db.Where("venue_id = ?", venueID).Order("created_at ASC").Find(&terminals).Error
	return terminals, err
}

func (d *DatabaseServiceImpl) MarkTerminalActivated(id string) error {
	return d.db.Model(&models.Terminal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"activated":    true,
			"activated_at": time.Now(),
		}).Error
}

func (d *DatabaseServiceImpl) CreateCommandRecord(record *models.CommandRecord) error {
	return d.db.Create(record).Error
}

func (d *DatabaseServiceImpl) UpdateCommandStatus(record *models.CommandRecord, status, errMsg string) error {
	record.Status = status
	record.ErrorMessage = errMsg
	now := time.Now()
	record.ResponseTime = &now
	return d.db.Save(record).Error
}

func (d *DatabaseServiceImpl) UpdateCommandStatusByInvocation(invocationID, status, message string) error {
	return d.db.Model(&models.CommandRecord{}).
		Where("invocation_id = ?", invocationID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": message,
			"response_time": time.Now(),
		}).Error
}

func (d *DatabaseServiceImpl) GetCommandHistory(venueID, terminalID string, page, pageSize int, status string) ([]models.CommandRecord, int64, error) {
	q := d.db.Model(&models.CommandRecord{}).
		Where("venue_id = ? AND terminal_id = ?", venueID, terminalID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.CommandRecord
	err := q.Order("request_time DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	return records, total, err
}

func (d *DatabaseServiceImpl) CreatePurchaseOrder(order *models.PurchaseOrder) error {
	return d.db.Create(order).Error
}

// =============================================================================
// Cache Service Implementation
// =============================================================================

type CacheServiceImpl struct {
	client *redis.Client
}

func NewCacheService(client *redis.Client) interfaces.CacheService {
	return &CacheServiceImpl{client: client}
}

func (c *CacheServiceImpl) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *CacheServiceImpl) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *CacheServiceImpl) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *CacheServiceImpl) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// =============================================================================
// Message Publisher Implementation
// =============================================================================

type MessagePublisherImpl struct {
	client mqtt.Client
}

func NewMessagePublisher(client mqtt.Client) interfaces.MessagePublisher {
	return &MessagePublisherImpl{client: client}
}

func (m *MessagePublisherImpl) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (m *MessagePublisherImpl) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

func (m *MessagePublisherImpl) IsConnected() bool {
	return m.client.IsConnected()
}

func (m *MessagePublisherImpl) Disconnect(quiesce uint) {
	m.client.Disconnect(quiesce)
}

// =============================================================================
// Config Provider Implementation
// =============================================================================

type ConfigProviderImpl struct {
	cfg *config.Config
}

func NewConfigProvider(cfg *config.Config) interfaces.ConfigProvider {
	return &ConfigProviderImpl{cfg: cfg}
}

func (c *ConfigProviderImpl) GetHeartbeatTimeout() time.Duration {
	return c.cfg.HeartbeatTimeout
}

func (c *ConfigProviderImpl) GetDebounceInterval() time.Duration {
	return c.cfg.DebounceInterval
}

func (c *ConfigProviderImpl) GetPresenceTTL() time.Duration {
	return c.cfg.PresenceTTL
}

func (c *ConfigProviderImpl) GetLogLevel() string {
	return c.cfg.LogLevel
}

// =============================================================================
// Logger Implementation
// =============================================================================

type LoggerImpl struct {
	logger *logrus.Logger
}

func NewLogger(level string) interfaces.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return &LoggerImpl{logger: logger}
}

func (l *LoggerImpl) Debug(args ...interface{})                 { l.logger.Debug(args...) }
func (l *LoggerImpl) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l *LoggerImpl) Info(args ...interface{})                  { l.logger.Info(args...) }
func (l *LoggerImpl) Infof(format string, args ...interface{})  { l.logger.Infof(format, args...) }
func (l *LoggerImpl) Warn(args ...interface{})                  { l.logger.Warn(args...) }
func (l *LoggerImpl) Warnf(format string, args ...interface{})  { l.logger.Warnf(format, args...) }
func (l *LoggerImpl) Error(args ...interface{})                 { l.logger.Error(args...) }
func (l *LoggerImpl) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
func (l *LoggerImpl) Fatal(args ...interface{})                 { l.logger.Fatal(args...) }
func (l *LoggerImpl) Fatalf(format string, args ...interface{}) { l.logger.Fatalf(format, args...) }

// =============================================================================
// Scheduler Implementation
// =============================================================================

type SchedulerImpl struct{}

func NewScheduler() interfaces.Scheduler {
	return &SchedulerImpl{}
}

func (s *SchedulerImpl) Schedule(d time.Duration, fn func()) interfaces.TimerHandle {
	return &timerHandle{timer: time.AfterFunc(d, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Cancel() bool {
	return h.timer.Stop()
}

// =============================================================================
// ID Generator Implementation
// =============================================================================

type IDGeneratorImpl struct{}

func NewIDGenerator() interfaces.IDGenerator {
	return &IDGeneratorImpl{}
}

func (g *IDGeneratorImpl) NewID() string {
	return uuid.NewString()
}
