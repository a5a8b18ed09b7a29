// Package lifecycle implements the TPA Lifecycle Controller (C7): starting
// and stopping TPAs via webhook, the reconnect-grace and auto-restart
// timers, and active-app bookkeeping on the owning session.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/augmentcore/corehub/internal/core/heartbeat"
	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/wire"
)

// AppDescriptor is the catalog's view of one installable TPA.
type AppDescriptor struct {
	PackageName   string
	PublicBaseURL string
	IsSystemApp   bool
	Permissions   map[string]bool
}

// Catalog resolves installed-app metadata. Implemented by
// internal/collab/catalog against Postgres.
type Catalog interface {
	GetApp(ctx context.Context, packageName string) (AppDescriptor, bool, error)
}

// UserStore records best-effort facts about a user's running apps.
// Implemented by internal/collab against whatever persistence backs it;
// failures are logged, never surfaced to the caller.
type UserStore interface {
	AddRunningApp(ctx context.Context, userID, packageName string) error
	RemoveRunningApp(ctx context.Context, userID, packageName string) error
}

// DisplayCleaner is invoked when a start attempt gives up without an
// admitted TPA channel, so any partial display state for the app is
// retracted.
type DisplayCleaner interface {
	CleanupFailedStart(userID, packageName string)
}

// AppStateNotifier pushes the current active-app snapshot back to the
// glasses connection after every lifecycle transition.
type AppStateNotifier interface {
	NotifyAppStateChange(sess *session.Session)
}

// Webhook posts a lifecycle payload to a TPA's webhook endpoint. Satisfied
// by [WebhookClient]; tests substitute a stub.
type Webhook interface {
	Post(ctx context.Context, packageName, url string, body any) error
}

// Config bundles the timing knobs the controller needs from
// [config.TimeoutConfig].
type Config struct {
	StartWindow      time.Duration
	ReconnectGrace   time.Duration
	AutoRestartDelay time.Duration
	PublicHost       string
	InternalHost     string
}

// Submitter runs fn on the serial event queue that owns userID's session.
// The connection layer (internal/wsfront) is the only thing that knows
// where that queue lives, so it supplies this at construction; the
// lifecycle package only ever sees a function value, not wsfront's types,
// keeping the import edge one-way.
type Submitter func(userID string, fn func())

// Controller implements start, stop, reconnect-grace, and auto-restart for
// TPAs within a session.
type Controller struct {
	catalog   Catalog
	userStore UserStore
	display   DisplayCleaner
	notifier  AppStateNotifier
	webhook   Webhook
	cfg       Config
	submit    Submitter
	logger    *slog.Logger
}

// New returns a Controller. userStore, display, and notifier may be nil;
// their calls are then skipped. submit may be nil, in which case the
// auto-restart timer invokes Start directly from its own goroutine instead
// of handing it back to the session's serial queue — callers wired to
// internal/wsfront should always supply Manager.Submit here.
func New(catalog Catalog, userStore UserStore, display DisplayCleaner, notifier AppStateNotifier, webhook Webhook, cfg Config, submit Submitter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		catalog:   catalog,
		userStore: userStore,
		display:   display,
		notifier:  notifier,
		webhook:   webhook,
		cfg:       cfg,
		submit:    submit,
		logger:    logger,
	}
}

// Start launches packageName for sess. Idempotent if the app is already
// loading or active.
func (c *Controller) Start(ctx context.Context, sess *session.Session, packageName string) error {
	if sess.IsLoadingOrActive(packageName) {
		return nil
	}
	sess.MarkLoading(packageName)

	app, ok, err := c.catalog.GetApp(ctx, packageName)
	if err != nil {
		sess.UnmarkLoading(packageName)
		return fmt.Errorf("resolve app %s: %w", packageName, err)
	}
	if !ok {
		sess.UnmarkLoading(packageName)
		return fmt.Errorf("app %s is not installed", packageName)
	}

	websocketURL := c.connectBackURL(app)
	req := wire.SessionRequest{
		Type:                  "session_request",
		SessionID:             sess.ID,
		UserID:                sess.ID,
		Timestamp:             time.Now(),
		AugmentOSWebsocketURL: websocketURL,
	}

	timer := time.AfterFunc(c.startWindow(), func() {
		if sess.IsLoadingOrActive(packageName) && !sess.HasAdmittedChannel(packageName) {
			sess.UnmarkLoading(packageName)
			if c.display != nil {
				c.display.CleanupFailedStart(sess.ID, packageName)
			}
		}
	})

	if err := c.webhook.Post(ctx, packageName, app.PublicBaseURL+"/webhook", req); err != nil {
		timer.Stop()
		sess.UnmarkLoading(packageName)
		return fmt.Errorf("start webhook for %s: %w", packageName, err)
	}

	sess.AddActiveApp(packageName)
	if c.userStore != nil {
		if err := c.userStore.AddRunningApp(ctx, sess.ID, packageName); err != nil {
			c.logger.Warn("failed to persist running app", "package_name", packageName, "error", err)
		}
	}

	if sess.Mic != nil && sess.Subscriptions.AnyMediaSubs() {
		sess.Mic.Request(true)
	}
	if c.notifier != nil {
		c.notifier.NotifyAppStateChange(sess)
	}
	return nil
}

// Stop tears down packageName for sess: removes it from the active-app
// list, POSTs a stop_request webhook (best effort), and closes its channel
// with code 1000 and reason "App stopped: <reason>". ClassifyDisconnect
// reports that close as normal, and HandleChannelClosed treats normal and
// explicit_stop closes alike as intentional: no reconnect grace and no
// auto-restart.
func (c *Controller) Stop(ctx context.Context, sess *session.Session, packageName, reason string) {
	sess.RemoveActiveApp(packageName)
	sess.UnmarkLoading(packageName)

	app, ok, err := c.catalog.GetApp(ctx, packageName)
	if err == nil && ok {
		req := wire.StopRequest{
			Type:      "stop_request",
			SessionID: sess.ID,
			UserID:    sess.ID,
			Reason:    reason,
			Timestamp: time.Now(),
		}
		if err := c.webhook.Post(ctx, packageName, app.PublicBaseURL+"/webhook", req); err != nil {
			c.logger.Warn("stop webhook failed", "package_name", packageName, "error", err)
		}
	}

	if ch, ok := sess.TPAChannel(packageName); ok {
		if err := ch.Conn.Close(1000, "App stopped: "+reason); err != nil {
			c.logger.Warn("error closing TPA channel on stop", "package_name", packageName, "error", err)
		}
	}
	sess.RemoveTPAChannel(packageName)

	if c.userStore != nil {
		if err := c.userStore.RemoveRunningApp(ctx, sess.ID, packageName); err != nil {
			c.logger.Warn("failed to clear running app", "package_name", packageName, "error", err)
		}
	}
	if sess.Mic != nil && !sess.Subscriptions.AnyMediaSubs() {
		sess.Mic.Request(false)
	}
	if c.notifier != nil {
		c.notifier.NotifyAppStateChange(sess)
	}
}

// HandleChannelClosed reacts to a TPA channel closing for a reason other
// than an explicit stop already handled by Stop: it arms the reconnect
// grace window, and if that expires without a reconnect, schedules an
// auto-restart after AutoRestartDelay.
func (c *Controller) HandleChannelClosed(ctx context.Context, sess *session.Session, packageName string, closeCode int, closeReason string) {
	reason := heartbeat.ClassifyDisconnect(closeCode, closeReason)
	if reason == heartbeat.ReasonExplicitStop || reason == heartbeat.ReasonNormal {
		sess.RemoveTPAChannel(packageName)
		sess.RemoveActiveApp(packageName)
		return
	}

	sess.RemoveTPAChannel(packageName)
	sess.ArmReconnectGrace(packageName, func() {
		if sess.HasAdmittedChannel(packageName) {
			return
		}
		time.AfterFunc(c.autoRestartDelay(), func() {
			c.runAutoRestart(ctx, sess, packageName)
		})
	})
}

// runAutoRestart re-admits packageName after its auto-restart delay
// expires. Start touches sess.Subscriptions, which is only safe to read or
// write from the session's serial event queue, so this always goes
// through submit rather than running on the timer's own goroutine.
func (c *Controller) runAutoRestart(ctx context.Context, sess *session.Session, packageName string) {
	restart := func() {
		if sess.HasAdmittedChannel(packageName) {
			return
		}
		sess.RemoveActiveApp(packageName)
		if err := c.Start(ctx, sess, packageName); err != nil {
			c.logger.Warn("auto-restart failed", "package_name", packageName, "error", err)
		}
	}
	if c.submit != nil {
		c.submit(sess.ID, restart)
		return
	}
	restart()
}

func (c *Controller) connectBackURL(app AppDescriptor) string {
	if app.IsSystemApp && c.cfg.InternalHost != "" {
		return "wss://" + c.cfg.InternalHost + "/tpa-ws"
	}
	host := c.cfg.PublicHost
	return "wss://" + host + "/tpa-ws"
}

func (c *Controller) startWindow() time.Duration {
	if c.cfg.StartWindow > 0 {
		return c.cfg.StartWindow
	}
	return 5 * time.Second
}

func (c *Controller) autoRestartDelay() time.Duration {
	if c.cfg.AutoRestartDelay > 0 {
		return c.cfg.AutoRestartDelay
	}
	return 500 * time.Millisecond
}
