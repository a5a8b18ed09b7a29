package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validLogLevels lists the log levels accepted in server.log_level.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// ValidASRBackends lists known transcription backend names.
// Used by [Validate] to warn about unrecognised backend names.
var ValidASRBackends = []string{"deepgram", "whisper", "fallback"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued timing fields with sane production
// defaults so an operator only has to specify overrides.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Heartbeat.PingInterval <= 0 {
		cfg.Heartbeat.PingInterval = defaultPingInterval
	}
	if cfg.Heartbeat.MaxMissedPings <= 0 {
		cfg.Heartbeat.MaxMissedPings = defaultMaxMissedPings
	}
	if cfg.Heartbeat.CriticalSilence <= 0 {
		cfg.Heartbeat.CriticalSilence = defaultCriticalSilence
	}
	if cfg.Timeouts.WebhookTimeout <= 0 {
		cfg.Timeouts.WebhookTimeout = defaultWebhookTimeout
	}
	if cfg.Timeouts.WebhookMaxRetries <= 0 {
		cfg.Timeouts.WebhookMaxRetries = defaultWebhookMaxRetries
	}
	if cfg.Timeouts.TPAStartWindow <= 0 {
		cfg.Timeouts.TPAStartWindow = defaultTPAStartWindow
	}
	if cfg.Timeouts.ReconnectGrace <= 0 {
		cfg.Timeouts.ReconnectGrace = defaultReconnectGrace
	}
	if cfg.Timeouts.AutoRestartDelay <= 0 {
		cfg.Timeouts.AutoRestartDelay = defaultAutoRestartDelay
	}
	if cfg.Timeouts.PhotoRequestTimeout <= 0 {
		cfg.Timeouts.PhotoRequestTimeout = defaultPhotoRequestTimeout
	}
	if cfg.Timeouts.MicDebounce <= 0 {
		cfg.Timeouts.MicDebounce = defaultMicDebounce
	}
	if cfg.Catalog.QueryTimeout <= 0 {
		cfg.Catalog.QueryTimeout = defaultCatalogQueryTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must both be set or both be empty"))
	}

	if cfg.Heartbeat.MaxMissedPings < 1 {
		errs = append(errs, errors.New("heartbeat.max_missed_pings must be at least 1"))
	}
	if cfg.Heartbeat.CriticalSilence < cfg.Heartbeat.PingInterval {
		errs = append(errs, errors.New("heartbeat.critical_silence must be at least heartbeat.ping_interval"))
	}

	if cfg.Timeouts.WebhookMaxRetries < 0 {
		errs = append(errs, errors.New("timeouts.webhook_max_retries must not be negative"))
	}

	if cfg.Catalog.DSN == "" {
		errs = append(errs, errors.New("catalog.dsn is required"))
	}

	validateASRBackend(cfg.ASR.Backend)

	return errors.Join(errs...)
}

// validateASRBackend logs a warning if name is non-empty and not a
// recognised transcription backend. Unknown names are not rejected outright:
// operators may register a third-party backend via [Registry].
func validateASRBackend(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidASRBackends, name) {
		return
	}
	slog.Warn("unknown asr backend — may be a typo or a custom-registered backend",
		"backend", name,
		"known", ValidASRBackends,
	)
}
