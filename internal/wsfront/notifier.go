package wsfront

import (
	"log/slog"

	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/wire"
)

// AppStateNotifier implements lifecycle.AppStateNotifier: it pushes the
// current active-app snapshot to the glasses connection after a start,
// stop, or auto-restart transition.
type AppStateNotifier struct {
	logger *slog.Logger
}

// NewAppStateNotifier returns an AppStateNotifier. logger may be nil.
func NewAppStateNotifier(logger *slog.Logger) *AppStateNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppStateNotifier{logger: logger}
}

// NotifyAppStateChange implements lifecycle.AppStateNotifier.
func (n *AppStateNotifier) NotifyAppStateChange(sess *session.Session) {
	conn := sess.GlassesConn()
	if conn == nil {
		return
	}
	frame := wire.AppStateChange{
		Type:        "app_state_change",
		UserSession: sess.ID,
		ActiveApps:  sess.ActiveApps(),
	}
	if err := conn.SendJSON(frame); err != nil {
		n.logger.Warn("failed to send app_state_change", "session_id", sess.ID, "error", err)
	}
}
