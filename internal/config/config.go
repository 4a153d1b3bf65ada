package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// HTTP
	APIListenAddr string
	OpsListenAddr string

	// Application
	LogLevel         string
	HeartbeatTimeout time.Duration
	DebounceInterval time.Duration
	PresenceTTL      time.Duration
}

func Load() (*Config, error) {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	heartbeatTimeout, _ := strconv.Atoi(getEnv("HEARTBEAT_TIMEOUT_SECONDS", "60"))
	debounceMillis, _ := strconv.Atoi(getEnv("DEBOUNCE_INTERVAL_MS", "500"))
	presenceTTL, _ := strconv.Atoi(getEnv("PRESENCE_TTL_SECONDS", "90"))

	return &Config{
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "password"),
		DBName:           getEnv("DB_NAME", "tpv_fleet"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          redisDB,
		MQTTBroker:       getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "TPV_FLEET_BRIDGE"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		APIListenAddr:    getEnv("API_LISTEN_ADDR", ":8080"),
		OpsListenAddr:    getEnv("OPS_LISTEN_ADDR", ":8081"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HeartbeatTimeout: time.Duration(heartbeatTimeout) * time.Second,
		DebounceInterval: time.Duration(debounceMillis) * time.Millisecond,
		PresenceTTL:      time.Duration(presenceTTL) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
