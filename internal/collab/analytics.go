package collab

import "log/slog"

// EventTracker records a named analytics event for a user with arbitrary
// properties, matching the analytics.trackEvent(name, userId, props)
// collaborator the core consumes.
type EventTracker interface {
	TrackEvent(name, userID string, props map[string]any)
}

// LoggingAnalytics is the default EventTracker: it logs every event at
// info level instead of forwarding to a real analytics backend.
type LoggingAnalytics struct {
	logger *slog.Logger
}

// NewLoggingAnalytics returns a LoggingAnalytics. logger may be nil to use
// slog.Default().
func NewLoggingAnalytics(logger *slog.Logger) *LoggingAnalytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingAnalytics{logger: logger}
}

// TrackEvent implements EventTracker.
func (a *LoggingAnalytics) TrackEvent(name, userID string, props map[string]any) {
	a.logger.Info("analytics event", "name", name, "user_id", userID, "props", props)
}
