package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kaiwa/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Session    SessionConfig    `koanf:"session"`
	Transport  TransportConfig  `koanf:"transport"`
	Transcript TranscriptConfig `koanf:"transcript"`
}

type ServerConfig struct {
	BaseURL  string `koanf:"base_url"`
	LogLevel string `koanf:"log_level"`
}

type SessionConfig struct {
	ConversationID     string `koanf:"conversation_id"`
	InboxSize          int    `koanf:"inbox_size"`
	NotifyBuffer       int    `koanf:"notify_buffer"`
	EchoSuppressWindow string `koanf:"echo_suppress_window"`
}

type TransportConfig struct {
	DialTimeout  string          `koanf:"dial_timeout"`
	WriteTimeout string          `koanf:"write_timeout"`
	PingInterval string          `koanf:"ping_interval"`
	PongTimeout  string          `koanf:"pong_timeout"`
	SendBuffer   int             `koanf:"send_buffer"`
	Reconnect    ReconnectConfig `koanf:"reconnect"`
}

type ReconnectConfig struct {
	InitialDelay string  `koanf:"initial_delay"`
	Multiplier   float64 `koanf:"multiplier"`
	MaxDelay     string  `koanf:"max_delay"`
	MaxAttempts  int     `koanf:"max_attempts"`
}

type TranscriptConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Dir            string `koanf:"dir"`
	RotateMaxBytes int64  `koanf:"rotate_max_bytes"`
	LockTimeout    string `koanf:"lock_timeout"`
	LockRetry      string `koanf:"lock_retry"`
}

const (
	DefaultServerBaseURL             = "http://localhost:3000"
	DefaultServerLogLevel            = "info"
	DefaultSessionInboxSize          = 256
	DefaultSessionNotifyBuffer       = 64
	DefaultSessionEchoSuppressWindow = "10s"
	DefaultTransportDialTimeout      = "10s"
	DefaultTransportWriteTimeout     = "10s"
	DefaultTransportPingInterval     = "25s"
	DefaultTransportPongTimeout      = "60s"
	DefaultTransportSendBuffer       = 64
	DefaultReconnectInitialDelay     = "1s"
	DefaultReconnectMultiplier       = 2.0
	DefaultReconnectMaxDelay         = "30s"
	DefaultReconnectMaxAttempts      = 10
	DefaultTranscriptEnabled         = true
	DefaultTranscriptRotateMaxBytes  = 10 * 1024 * 1024
	DefaultTranscriptLockTimeout     = "5s"
	DefaultTranscriptLockRetry       = "100ms"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.base_url":                   DefaultServerBaseURL,
		"server.log_level":                  DefaultServerLogLevel,
		"session.conversation_id":           "",
		"session.inbox_size":                DefaultSessionInboxSize,
		"session.notify_buffer":             DefaultSessionNotifyBuffer,
		"session.echo_suppress_window":      DefaultSessionEchoSuppressWindow,
		"transport.dial_timeout":            DefaultTransportDialTimeout,
		"transport.write_timeout":           DefaultTransportWriteTimeout,
		"transport.ping_interval":           DefaultTransportPingInterval,
		"transport.pong_timeout":            DefaultTransportPongTimeout,
		"transport.send_buffer":             DefaultTransportSendBuffer,
		"transport.reconnect.initial_delay": DefaultReconnectInitialDelay,
		"transport.reconnect.multiplier":    DefaultReconnectMultiplier,
		"transport.reconnect.max_delay":     DefaultReconnectMaxDelay,
		"transport.reconnect.max_attempts":  DefaultReconnectMaxAttempts,
		"transcript.enabled":                DefaultTranscriptEnabled,
		"transcript.dir":                    filepath.Join(os.Getenv("HOME"), ".kaiwa", "sessions"),
		"transcript.rotate_max_bytes":       DefaultTranscriptRotateMaxBytes,
		"transcript.lock_timeout":           DefaultTranscriptLockTimeout,
		"transcript.lock_retry":             DefaultTranscriptLockRetry,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".kaiwa", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("KAIWA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KAIWA_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	transcriptDir, err := pathutil.Expand(cfg.Transcript.Dir)
	if err != nil {
		return nil, err
	}
	if transcriptDir != "" {
		cfg.Transcript.Dir = transcriptDir
	}

	return &cfg, nil
}
