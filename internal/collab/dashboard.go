package collab

import "log/slog"

// LoggingDashboard is the default session.DashboardManager: it logs every
// dashboard instruction instead of driving an actual dashboard surface.
type LoggingDashboard struct {
	logger *slog.Logger
}

// NewLoggingDashboard returns a LoggingDashboard. logger may be nil to use
// slog.Default().
func NewLoggingDashboard(logger *slog.Logger) *LoggingDashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingDashboard{logger: logger}
}

// HandleContentUpdate implements session.DashboardManager.
func (d *LoggingDashboard) HandleContentUpdate(userID string, payload map[string]any) {
	d.logger.Debug("dashboard content update", "user_id", userID, "payload", payload)
}

// HandleModeChange implements session.DashboardManager.
func (d *LoggingDashboard) HandleModeChange(userID, mode string) {
	d.logger.Info("dashboard mode change", "user_id", userID, "mode", mode)
}
