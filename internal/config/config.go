package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              string
	Env               string
	DatabaseURL       string
	EvolutionURL      string
	EvolutionAPIKey   string
	GatewayTimeout    time.Duration
	SyncMessageLimit  int
	MessageRetention  time.Duration
	SendRatePerMinute int
	SendJitterMinMS   int
	SendJitterMaxMS   int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "4002"),
		Env:               getEnv("APP_ENV", "production"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		EvolutionURL:      getEnv("EVOLUTION_API_URL", ""),
		EvolutionAPIKey:   getEnv("EVOLUTION_API_KEY", ""),
		GatewayTimeout:    getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		SyncMessageLimit:  getIntEnv("SYNC_MESSAGE_LIMIT", 30),
		MessageRetention:  getDurationEnv("MESSAGE_RETENTION", 0),
		SendRatePerMinute: getIntEnv("SEND_RATE_PER_MINUTE_DEFAULT", 15),
		SendJitterMinMS:   getIntEnv("SEND_JITTER_MIN_MS", 200),
		SendJitterMaxMS:   getIntEnv("SEND_JITTER_MAX_MS", 600),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.EvolutionURL == "" {
		return nil, fmt.Errorf("EVOLUTION_API_URL is required")
	}

	if cfg.EvolutionAPIKey == "" {
		return nil, fmt.Errorf("EVOLUTION_API_KEY is required")
	}

	if cfg.SyncMessageLimit <= 0 {
		cfg.SyncMessageLimit = 30
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
