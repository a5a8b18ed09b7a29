package config

// ConfigDiff describes what changed between two configs.
// Log level, heartbeat, timeouts, and ASR settings are tracked; listen
// address, TLS material, and catalog settings are never diffed here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	HeartbeatChanged bool
	NewHeartbeat     HeartbeatConfig

	TimeoutsChanged bool
	NewTimeouts     TimeoutConfig

	ASRChanged bool
	NewASR     ASRConfig
}

// Diff compares old and new configs and returns what changed in the
// tracked fields.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Heartbeat != new.Heartbeat {
		d.HeartbeatChanged = true
		d.NewHeartbeat = new.Heartbeat
	}

	if old.Timeouts != new.Timeouts {
		d.TimeoutsChanged = true
		d.NewTimeouts = new.Timeouts
	}

	if asrChanged(old.ASR, new.ASR) {
		d.ASRChanged = true
		d.NewASR = new.ASR
	}

	return d
}

// asrChanged compares two ASRConfig values. Options is a map and therefore
// not comparable with ==, so it is compared separately.
func asrChanged(old, new ASRConfig) bool {
	if old.Backend != new.Backend || old.APIKey != new.APIKey || old.BaseURL != new.BaseURL {
		return true
	}
	if len(old.Options) != len(new.Options) {
		return true
	}
	for k, v := range old.Options {
		if new.Options[k] != v {
			return true
		}
	}
	return false
}
