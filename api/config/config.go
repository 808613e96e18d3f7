package config

import (
	"os"

	wconfig "threatAnalyzer/worker/config"
)

// Config wraps the shared analyzer config with API-only settings. Queue
// name, status TTL, default scheme and storage must match the workers, so
// they come from the same file and environment.
type Config struct {
	Port   string
	Env    string
	Shared *wconfig.Config
}

func Load() (*Config, error) {
	shared, err := wconfig.Load(getEnv("ANALYZER_CONFIG", ""))
	if err != nil {
		return nil, err
	}
	return &Config{
		Port:   getEnv("SERVICE_PORT", "8081"),
		Env:    getEnv("ENV", "development"),
		Shared: shared,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
