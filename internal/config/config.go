package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

type AppConfig struct {
	AppEnv   string
	LogLevel slog.Level
	Port     string

	// HTTPTimeout bounds every outbound HTTP exchange.
	HTTPTimeout time.Duration
	// ProviderTimeout bounds a single provider fetch, limiter wait included.
	ProviderTimeout   time.Duration
	ProviderRateLimit float64 // requests per second per provider (0 = unlimited)
	ProviderBurst     int

	OpenWeatherAPIKey        string
	WeatherAPIKey            string
	AerisWeatherClientID     string
	AerisWeatherClientSecret string
	WeatherbitAPIKey         string
	GeocoderAPIKey           string

	CacheBackend string
	SQLitePath   string
	DatabaseURL  string

	CoalesceRequests bool

	// MQTT publishing is disabled when MQTTBrokerURL is empty.
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "err", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	if cfg.LogLevel, err = parseLogLevel(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getenvDuration("PROVIDER_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderRateLimit, err = getenvFloat("PROVIDER_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.ProviderBurst, err = getenvInt("PROVIDER_BURST", 5); err != nil {
		return nil, err
	}

	cfg.OpenWeatherAPIKey = getenvDefault("OPENWEATHER_API_KEY", "")
	// WeatherAPI.com took over the Apixu keys.
	cfg.WeatherAPIKey = getenvDefault("WEATHERAPI_API_KEY", getenvDefault("APIXU_API_KEY", ""))
	cfg.AerisWeatherClientID = getenvDefault("AERISWEATHER_CLIENT_ID", "")
	cfg.AerisWeatherClientSecret = getenvDefault("AERISWEATHER_CLIENT_SECRET", "")
	if (cfg.AerisWeatherClientID == "") != (cfg.AerisWeatherClientSecret == "") {
		return nil, errors.New("AERISWEATHER_CLIENT_ID and AERISWEATHER_CLIENT_SECRET must be set together")
	}
	cfg.WeatherbitAPIKey = getenvDefault("WEATHERBIT_API_KEY", "")
	cfg.GeocoderAPIKey = getenvDefault("GEOCODER_API_KEY", "")

	cfg.CacheBackend = strings.ToLower(getenvDefault("CACHE_BACKEND", CacheMemory))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/forecast-cache.db")
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", "")
	switch cfg.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CachePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when CACHE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (allowed: memory, sqlite, postgres)", cfg.CacheBackend)
	}

	if cfg.CoalesceRequests, err = getenvBool("COALESCE_REQUESTS", true); err != nil {
		return nil, err
	}

	cfg.MQTTBrokerURL = getenvDefault("MQTT_BROKER_URL", "")
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "forecast-aggregation")
	cfg.MQTTTopicPrefix = strings.Trim(getenvDefault("MQTT_TOPIC_PREFIX", "forecast"), "/")

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := getenvDefault(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := getenvDefault(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := getenvDefault(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenvDefault(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
