// Package collab provides narrow default adapters for the collaborator
// interfaces the core consumes but does not implement itself: display,
// dashboard, analytics, and the user/app-state store. Each default is a
// thin logging shim; a deployment wires a real implementation behind the
// same interface where one is needed.
package collab

import "log/slog"

// LoggingDisplay is the default session.DisplayManager / lifecycle.DisplayCleaner:
// it logs every transition instead of driving an actual display surface.
type LoggingDisplay struct {
	logger *slog.Logger
}

// NewLoggingDisplay returns a LoggingDisplay. logger may be nil to use
// slog.Default().
func NewLoggingDisplay(logger *slog.Logger) *LoggingDisplay {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingDisplay{logger: logger}
}

// HandleAppStart implements session.DisplayManager.
func (d *LoggingDisplay) HandleAppStart(userID, packageName string) {
	d.logger.Info("app started", "user_id", userID, "package_name", packageName)
}

// HandleAppStop implements session.DisplayManager.
func (d *LoggingDisplay) HandleAppStop(userID, packageName string) {
	d.logger.Info("app stopped", "user_id", userID, "package_name", packageName)
}

// CleanupFailedStart implements lifecycle.DisplayCleaner.
func (d *LoggingDisplay) CleanupFailedStart(userID, packageName string) {
	d.logger.Warn("cleaning up failed app start", "user_id", userID, "package_name", packageName)
}
