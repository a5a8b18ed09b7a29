package config

import "time"

// Production defaults applied by [LoadFromReader] when a config omits a
// timing field.
const (
	defaultPingInterval       = 15 * time.Second
	defaultMaxMissedPings     = 3
	defaultCriticalSilence    = 60 * time.Second
	defaultWebhookTimeout     = 10 * time.Second
	defaultWebhookMaxRetries  = 3
	defaultTPAStartWindow     = 5 * time.Second
	defaultReconnectGrace     = 5 * time.Second
	defaultAutoRestartDelay   = 500 * time.Millisecond
	defaultPhotoRequestTimeout = 10 * time.Second
	defaultMicDebounce        = 300 * time.Millisecond
	defaultCatalogQueryTimeout = 3 * time.Second
)
