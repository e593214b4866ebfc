package config

import (
	"os"
	"strconv"
)

// 環境変数はEMBERWATCH_プレフィクスで揃えます。コンテナ運用時の上書き手段。
const (
	envBackendURL      = "EMBERWATCH_BACKEND_URL"
	envAPIToken        = "EMBERWATCH_API_TOKEN"
	envModel           = "EMBERWATCH_MODEL"
	envIterateInterval = "EMBERWATCH_ITERATE_INTERVAL_MS"
	envScreenInterval  = "EMBERWATCH_SCREEN_INTERVAL_MS"
	envOTLPEndpoint    = "EMBERWATCH_OTLP_ENDPOINT"
	envLogLevel        = "EMBERWATCH_LOG_LEVEL"
)

func applyEnv(cfg *Config) {
	cfg.Backend.URL = getEnvDefault(envBackendURL, cfg.Backend.URL)
	cfg.Backend.APIToken = getEnvDefault(envAPIToken, cfg.Backend.APIToken)
	cfg.Agent.Model = getEnvDefault(envModel, cfg.Agent.Model)
	cfg.Poll.IterateIntervalMS = getEnvIntDefault(envIterateInterval, cfg.Poll.IterateIntervalMS)
	cfg.Poll.ScreenIntervalMS = getEnvIntDefault(envScreenInterval, cfg.Poll.ScreenIntervalMS)
	cfg.Telemetry.OTLPEndpoint = getEnvDefault(envOTLPEndpoint, cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.LogLevel = getEnvDefault(envLogLevel, cfg.Telemetry.LogLevel)
}

func getEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
