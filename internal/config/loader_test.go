package config_test

import (
	"strings"
	"testing"

	"github.com/augmentcore/corehub/internal/config"
)

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/path/corehub.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	if _, err := config.LoadFromReader(strings.NewReader("server: [unterminated")); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestValidate_NegativeWebhookRetries(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: ":8080"},
		Catalog:  config.CatalogConfig{DSN: "postgres://localhost/x"},
		Timeouts: config.TimeoutConfig{WebhookMaxRetries: -1},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "webhook_max_retries") {
		t.Fatalf("expected webhook_max_retries error, got %v", err)
	}
}

func TestValidate_UnknownASRBackendIsWarningNotError(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080"},
		Catalog: config.CatalogConfig{DSN: "postgres://localhost/x"},
		ASR:     config.ASRConfig{Backend: "some-custom-backend"},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unknown asr backend should not fail validation, got %v", err)
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"listen_addr", "log_level", "catalog.dsn"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error %q missing %q", msg, want)
		}
	}
}
