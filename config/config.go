package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config はダッシュボード全体の設定です。TOMLファイルと環境変数の2段で決まり、
// 環境変数が常に優先されます。
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Agent     AgentConfig     `toml:"agent"`
	Poll      PollConfig      `toml:"poll"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type BackendConfig struct {
	URL      string `toml:"url"`
	APIToken string `toml:"api_token"`
}

type AgentConfig struct {
	Model string `toml:"model"`
}

type PollConfig struct {
	IterateIntervalMS int `toml:"iterate_interval_ms"`
	ScreenIntervalMS  int `toml:"screen_interval_ms"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	LogLevel     string `toml:"log_level"`
}

// Default はバックエンドをローカルで動かす前提の既定値を返します。
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL: "http://localhost:8000",
		},
		Agent: AgentConfig{
			Model: "claude-sonnet-4",
		},
		Poll: PollConfig{
			IterateIntervalMS: 2000,
			ScreenIntervalMS:  1000,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// Load は設定ファイルを読み、環境変数を上書きして返します。
// ファイルが存在しなければ既定値から始めます（エラーにしない）。
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// WSURL はバックエンドURLからストリームエンドポイントのURLを導出します。
// http→ws / https→wss に読み替えます。
func (c Config) WSURL() string {
	url := c.Backend.URL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimSuffix(url, "/") + "/ws/game"
}

// IterateInterval はエージェントステップの駆動間隔を返します。
func (c Config) IterateInterval() time.Duration {
	return time.Duration(c.Poll.IterateIntervalMS) * time.Millisecond
}

// ScreenInterval はスクリーン取得の間隔を返します。
func (c Config) ScreenInterval() time.Duration {
	return time.Duration(c.Poll.ScreenIntervalMS) * time.Millisecond
}

// LogLevel は設定文字列をslogのレベルに変換します。未知の値はinfoに落とします。
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
