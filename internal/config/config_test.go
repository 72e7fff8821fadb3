package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.BaseURL != DefaultServerBaseURL {
		t.Errorf("Expected default base url %s, got %s", DefaultServerBaseURL, cfg.Server.BaseURL)
	}
	if cfg.Server.LogLevel != DefaultServerLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultServerLogLevel, cfg.Server.LogLevel)
	}
	if cfg.Session.InboxSize != DefaultSessionInboxSize {
		t.Errorf("Expected default inbox size %d, got %d", DefaultSessionInboxSize, cfg.Session.InboxSize)
	}
	if cfg.Session.NotifyBuffer != DefaultSessionNotifyBuffer {
		t.Errorf("Expected default notify buffer %d, got %d", DefaultSessionNotifyBuffer, cfg.Session.NotifyBuffer)
	}
	if cfg.Session.EchoSuppressWindow != DefaultSessionEchoSuppressWindow {
		t.Errorf("Expected default echo suppress window %s, got %s", DefaultSessionEchoSuppressWindow, cfg.Session.EchoSuppressWindow)
	}
	if cfg.Transport.DialTimeout != DefaultTransportDialTimeout {
		t.Errorf("Expected default dial timeout %s, got %s", DefaultTransportDialTimeout, cfg.Transport.DialTimeout)
	}
	if cfg.Transport.PingInterval != DefaultTransportPingInterval {
		t.Errorf("Expected default ping interval %s, got %s", DefaultTransportPingInterval, cfg.Transport.PingInterval)
	}
	if cfg.Transport.SendBuffer != DefaultTransportSendBuffer {
		t.Errorf("Expected default send buffer %d, got %d", DefaultTransportSendBuffer, cfg.Transport.SendBuffer)
	}
	if cfg.Transport.Reconnect.InitialDelay != DefaultReconnectInitialDelay {
		t.Errorf("Expected default reconnect initial delay %s, got %s", DefaultReconnectInitialDelay, cfg.Transport.Reconnect.InitialDelay)
	}
	if cfg.Transport.Reconnect.Multiplier != DefaultReconnectMultiplier {
		t.Errorf("Expected default reconnect multiplier %v, got %v", DefaultReconnectMultiplier, cfg.Transport.Reconnect.Multiplier)
	}
	if cfg.Transport.Reconnect.MaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Expected default reconnect max delay %s, got %s", DefaultReconnectMaxDelay, cfg.Transport.Reconnect.MaxDelay)
	}
	if cfg.Transport.Reconnect.MaxAttempts != DefaultReconnectMaxAttempts {
		t.Errorf("Expected default reconnect max attempts %d, got %d", DefaultReconnectMaxAttempts, cfg.Transport.Reconnect.MaxAttempts)
	}
	if !cfg.Transcript.Enabled {
		t.Error("Expected transcript enabled by default")
	}
	if cfg.Transcript.RotateMaxBytes != DefaultTranscriptRotateMaxBytes {
		t.Errorf("Expected default rotate max bytes %d, got %d", DefaultTranscriptRotateMaxBytes, cfg.Transcript.RotateMaxBytes)
	}
	if cfg.Session.ConversationID != "" {
		t.Errorf("Expected empty default conversation id, got %s", cfg.Session.ConversationID)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  base_url: http://agent.example:8000
session:
  conversation_id: demo
transport:
  reconnect:
    max_attempts: 3
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.BaseURL != "http://agent.example:8000" {
		t.Fatalf("expected base url from file, got %s", cfg.Server.BaseURL)
	}
	if cfg.Session.ConversationID != "demo" {
		t.Fatalf("expected conversation id demo, got %s", cfg.Session.ConversationID)
	}
	if cfg.Transport.Reconnect.MaxAttempts != 3 {
		t.Fatalf("expected reconnect max attempts 3, got %d", cfg.Transport.Reconnect.MaxAttempts)
	}
	// Untouched keys keep their defaults
	if cfg.Transport.Reconnect.MaxDelay != DefaultReconnectMaxDelay {
		t.Fatalf("expected reconnect max delay %s, got %s", DefaultReconnectMaxDelay, cfg.Transport.Reconnect.MaxDelay)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KAIWA_SERVER_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("log level = %q, want %q", cfg.Server.LogLevel, "debug")
	}
}

func TestLoad_ExpandsTranscriptDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
transcript:
  dir: ~/.kaiwa/sessions
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	want := filepath.Join(tmpDir, ".kaiwa", "sessions")
	if cfg.Transcript.Dir != want {
		t.Fatalf("transcript dir = %q, want %q", cfg.Transcript.Dir, want)
	}
}
