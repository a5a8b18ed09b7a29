package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/augmentcore/corehub/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
heartbeat:
  ping_interval: 15s
  max_missed_pings: 3
  critical_silence: 60s
timeouts:
  webhook_timeout: 10s
  webhook_max_retries: 3
  tpa_start_window: 5s
  reconnect_grace: 5s
  auto_restart_delay: 500ms
  photo_request_timeout: 10s
  mic_debounce: 300ms
catalog:
  dsn: "postgres://localhost/corehub?sslmode=disable"
asr:
  backend: deepgram
  api_key: test-key
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.ASR.Backend != "deepgram" {
		t.Errorf("ASR.Backend = %q, want deepgram", cfg.ASR.Backend)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	minimal := `
server:
  listen_addr: ":8080"
catalog:
  dsn: "postgres://localhost/corehub"
`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Heartbeat.MaxMissedPings != 3 {
		t.Errorf("MaxMissedPings default = %d, want 3", cfg.Heartbeat.MaxMissedPings)
	}
	if cfg.Timeouts.ReconnectGrace <= 0 {
		t.Error("ReconnectGrace default not applied")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	bad := validYAML + "\nbogus_field: true\n"
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingListenAddr(t *testing.T) {
	cfg := &config.Config{
		Catalog: config.CatalogConfig{DSN: "postgres://localhost/x"},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "listen_addr") {
		t.Fatalf("expected listen_addr error, got %v", err)
	}
}

func TestValidate_MissingCatalogDSN(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080"},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "catalog.dsn") {
		t.Fatalf("expected catalog.dsn error, got %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080", LogLevel: "verbose"},
		Catalog: config.CatalogConfig{DSN: "postgres://localhost/x"},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got %v", err)
	}
}

func TestValidate_MismatchedTLSFiles(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080", TLSCertFile: "cert.pem"},
		Catalog: config.CatalogConfig{DSN: "postgres://localhost/x"},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "tls_cert_file") {
		t.Fatalf("expected tls mismatch error, got %v", err)
	}
}

func TestValidate_CriticalSilenceBelowPingInterval(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080"},
		Catalog: config.CatalogConfig{DSN: "postgres://localhost/x"},
		Heartbeat: config.HeartbeatConfig{
			PingInterval:    30 * time.Second,
			MaxMissedPings:  3,
			CriticalSilence: 10 * time.Second,
		},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "critical_silence") {
		t.Fatalf("expected critical_silence error, got %v", err)
	}
}
