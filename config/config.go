package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Alerting  AlertingConfig
	Relay     RelayConfig
	Predictor PredictorConfig
	MQTT      MQTTConfig
	Forecast  ForecastConfig
	LogLevel  string
}

type ServerConfig struct {
	Port        int
	MetricsAddr string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	// Path is the database file when Driver is sqlite.
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured. Without one the cache
// and the live feed are disabled.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type CORSConfig struct {
	AllowedOrigins string
}

type AlertingConfig struct {
	CriticalFlowDifference float64
	FeedLimit              int
	AtomicIngest           bool
}

type RelayConfig struct {
	URL       string
	MQTTTopic string
}

type PredictorConfig struct {
	Command    string
	TimeoutSec int
}

type MQTTConfig struct {
	URL      string
	Topic    string
	ClientID string
}

type ForecastConfig struct {
	IntervalSec int
}

func (d DatabaseConfig) GetDSN() string {
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	}
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	switch driver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q", driver)
	}

	defaultDBPort := 5432
	if driver == "mysql" {
		defaultDBPort = 3306
	}
	dbPort, err := getIntEnv("DB_PORT", defaultDBPort)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	criticalDiff, err := getFloatEnv("ALERT_CRITICAL_FLOW_DIFF", 1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_CRITICAL_FLOW_DIFF: %w", err)
	}
	if math.IsNaN(criticalDiff) || math.IsInf(criticalDiff, 0) || criticalDiff < 0 {
		return nil, fmt.Errorf("invalid ALERT_CRITICAL_FLOW_DIFF: %v must be a finite non-negative number", criticalDiff)
	}
	feedLimit, err := getIntEnv("ALERT_FEED_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_FEED_LIMIT: %w", err)
	}
	atomicIngest, err := getBoolEnv("INGEST_ATOMIC", false)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_ATOMIC: %w", err)
	}

	predictorTimeout, err := getIntEnv("PREDICTOR_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICTOR_TIMEOUT_SEC: %w", err)
	}
	if predictorTimeout <= 0 {
		return nil, fmt.Errorf("invalid PREDICTOR_TIMEOUT_SEC: %d must be positive", predictorTimeout)
	}
	forecastInterval, err := getIntEnv("FORECAST_INTERVAL_SEC", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_INTERVAL_SEC: %w", err)
	}
	if forecastInterval <= 0 {
		return nil, fmt.Errorf("invalid FORECAST_INTERVAL_SEC: %d must be positive", forecastInterval)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        serverPort,
			MetricsAddr: getEnv("METRICS_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "leakwatch"),
			Password: getEnv("DB_PASSWORD", "leakwatch_dev_password"),
			Name:     getEnv("DB_NAME", "waterleakagemonitoringdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "leakwatch.db"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     redisPort,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		},
		Alerting: AlertingConfig{
			CriticalFlowDifference: criticalDiff,
			FeedLimit:              feedLimit,
			AtomicIngest:           atomicIngest,
		},
		Relay: RelayConfig{
			URL:       strings.TrimRight(os.Getenv("RELAY_URL"), "/"),
			MQTTTopic: os.Getenv("RELAY_MQTT_TOPIC"),
		},
		Predictor: PredictorConfig{
			Command:    getEnv("PREDICTOR_COMMAND", "python predict_leak.py"),
			TimeoutSec: predictorTimeout,
		},
		MQTT: MQTTConfig{
			URL:      os.Getenv("MQTT_URL"),
			Topic:    getEnv("MQTT_TOPIC", "leakwatch/sensors/batch"),
			ClientID: getEnv("MQTT_CLIENT_ID", "leakwatch-collector"),
		},
		Forecast: ForecastConfig{
			IntervalSec: forecastInterval,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
