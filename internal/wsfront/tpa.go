package wsfront

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/augmentcore/corehub/internal/collab"
	"github.com/augmentcore/corehub/internal/core/heartbeat"
	"github.com/augmentcore/corehub/internal/core/lifecycle"
	"github.com/augmentcore/corehub/internal/core/permission"
	"github.com/augmentcore/corehub/internal/core/photo"
	"github.com/augmentcore/corehub/internal/core/routing"
	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/observe"
	"github.com/augmentcore/corehub/internal/wire"
)

// tpaInitTimeout bounds how long a freshly upgraded TPA socket has to send
// its tpa_connection_init frame before the connection is dropped.
const tpaInitTimeout = 10 * time.Second

// APIKeyValidator checks a TPA's admission credentials. Implemented by
// internal/collab/catalog.Store.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, packageName, apiKey, clientIP string) (bool, error)
}

// TPAHandler upgrades /tpa-ws requests, admits the connection against the
// catalog, and dispatches every subsequent frame through the owning
// session's serial event queue.
type TPAHandler struct {
	manager   *Manager
	lifecycle *lifecycle.Controller
	catalog   lifecycle.Catalog
	validator APIKeyValidator
	routing   *routing.Engine
	analytics collab.EventTracker
	upgrader  websocket.Upgrader
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// NewTPAHandler returns a TPAHandler. logger, metrics, and analytics may be
// nil; analytics defaults to a logging-only tracker.
func NewTPAHandler(manager *Manager, lc *lifecycle.Controller, catalog lifecycle.Catalog, validator APIKeyValidator, routingEngine *routing.Engine, analytics collab.EventTracker, metrics *observe.Metrics, logger *slog.Logger) *TPAHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if analytics == nil {
		analytics = collab.NewLoggingAnalytics(logger)
	}
	return &TPAHandler{
		manager:   manager,
		lifecycle: lc,
		catalog:   catalog,
		validator: validator,
		routing:   routingEngine,
		analytics: analytics,
		metrics:   metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *TPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("tpa upgrade failed", "error", err)
		return
	}
	c := newConn(ws)

	ws.SetReadDeadline(time.Now().Add(tpaInitTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		c.Close(1002, "expected tpa_connection_init")
		return
	}
	ws.SetReadDeadline(time.Time{})

	var init wire.TPAConnectionInit
	if err := json.Unmarshal(data, &init); err != nil || init.Type != "tpa_connection_init" {
		c.SendJSON(wire.ConnectionError{Type: "connection_error", Message: "expected tpa_connection_init"})
		c.Close(1002, "bad handshake")
		return
	}

	ok, err := h.validator.ValidateAPIKey(r.Context(), init.PackageName, init.APIKey, r.RemoteAddr)
	if err != nil {
		h.logger.Warn("api key validation error", "package_name", init.PackageName, "error", err)
		c.SendJSON(wire.AuthError{Type: "auth_error", Message: "validation unavailable"})
		c.Close(1011, "validation error")
		return
	}
	if !ok {
		c.SendJSON(wire.AuthError{Type: "auth_error", Message: "invalid API key"})
		c.Close(4001, "unauthorized")
		return
	}

	rt, ok := h.manager.Get(init.SessionID)
	if !ok {
		c.SendJSON(wire.ConnectionError{Type: "connection_error", Message: "unknown session"})
		c.Close(1002, "unknown session")
		return
	}
	sess := rt.sess

	ch := sess.AddTPAChannel(init.PackageName, c)
	connID := "tpa:" + init.PackageName + "@" + sess.ID
	sess.Heartbeat.Register(connID, heartbeat.KindTPA, c)
	h.metrics.ActiveTPAChannels.Add(context.Background(), 1)

	ws.SetPongHandler(func(appData string) error {
		sess.Heartbeat.RecordPong(connID, latencySince(appData))
		return nil
	})

	ack := wire.TPAConnectionAck{Type: "tpa_connection_ack", SessionID: ch.VirtualID, Settings: sess.Settings()}
	if err := c.SendJSON(ack); err != nil {
		h.logger.Warn("failed to send tpa_connection_ack", "package_name", init.PackageName, "error", err)
		sess.RemoveTPAChannel(init.PackageName)
		return
	}
	h.analytics.TrackEvent("tpa_connected", sess.ID, map[string]any{"package_name": init.PackageName})

	h.readLoop(ws, sess, rt, init.PackageName, connID)
}

func (h *TPAHandler) readLoop(ws *websocket.Conn, sess *session.Session, rt *sessionRuntime, packageName, connID string) {
	closeCode := 1000
	closeReason := ""

	defer func() {
		h.metrics.ActiveTPAChannels.Add(context.Background(), -1)
		sess.Heartbeat.Unregister(connID)
		rt.submit(func() {
			h.lifecycle.HandleChannelClosed(context.Background(), sess, packageName, closeCode, closeReason)
		})
	}()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
				closeReason = ce.Text
			}
			return
		}
		sess.Heartbeat.RecordActivity(connID, len(data))
		if messageType != websocket.TextMessage {
			continue
		}

		frame := append([]byte(nil), data...)
		rt.submit(func() {
			h.dispatch(sess, rt, packageName, frame)
		})
	}
}

func (h *TPAHandler) dispatch(sess *session.Session, rt *sessionRuntime, packageName string, raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Type {
	case "subscription_update":
		var msg wire.SubscriptionUpdate
		json.Unmarshal(raw, &msg)
		h.handleSubscriptionUpdate(context.Background(), sess, rt, packageName, msg.Subscriptions)

	case "display_event":
		var msg wire.TPADisplayEvent
		json.Unmarshal(raw, &msg)
		if conn := sess.GlassesConn(); conn != nil {
			if err := conn.SendJSON(wire.DisplayEvent{Type: "display_event", AppID: packageName, Payload: msg.Payload}); err != nil {
				sess.Logger.Warn("failed to forward display_event", "package_name", packageName, "error", err)
			}
		}

	case "dashboard_content_update":
		var msg wire.DashboardContentUpdate
		json.Unmarshal(raw, &msg)
		if sess.Dashboard != nil {
			sess.Dashboard.HandleContentUpdate(sess.ID, msg.Payload)
		}

	case "dashboard_mode_change":
		var msg wire.DashboardModeChange
		json.Unmarshal(raw, &msg)
		if sess.Dashboard != nil {
			sess.Dashboard.HandleModeChange(sess.ID, msg.Mode)
		}

	case "dashboard_system_update":
		var msg wire.DashboardSystemUpdate
		json.Unmarshal(raw, &msg)
		if sess.Dashboard != nil {
			sess.Dashboard.HandleContentUpdate(sess.ID, msg.Payload)
		}

	case "photo_request":
		var msg wire.TPAPhotoRequest
		json.Unmarshal(raw, &msg)
		h.handlePhotoRequest(sess, packageName, msg.SaveToGallery)

	case "video_stream_request":
		var msg wire.TPAVideoStreamRequest
		json.Unmarshal(raw, &msg)
		if conn := sess.GlassesConn(); conn != nil {
			if err := conn.SendJSON(wire.VideoStreamRequest{Type: "video_stream_request", AppID: packageName}); err != nil {
				sess.Logger.Warn("failed to forward video_stream_request", "package_name", packageName, "error", err)
			}
		}

	default:
		h.logger.Warn("unrecognized tpa frame type", "package_name", packageName, "type", env.Type)
	}
}

func (h *TPAHandler) handleSubscriptionUpdate(ctx context.Context, sess *session.Session, rt *sessionRuntime, packageName string, raw []string) {
	app, ok, err := h.catalog.GetApp(ctx, packageName)
	if err != nil || !ok {
		sess.Logger.Warn("subscription_update for unresolvable app", "package_name", packageName, "error", err)
		return
	}

	requested := make([]wire.Descriptor, 0, len(raw))
	for _, r := range raw {
		requested = append(requested, wire.NormalizeSubscription(r))
	}

	allowed, rejected := permission.Filter(permission.App{PackageName: packageName, Permissions: app.Permissions}, requested)

	allowedRaw := make([]string, len(allowed))
	for i, d := range allowed {
		allowedRaw[i] = string(d)
	}
	applied := sess.Subscriptions.Update(packageName, allowedRaw)

	h.routing.ReplayCacheOnSubscribe(sess, packageName, applied)

	if len(rejected) > 0 {
		details := make([]wire.PermissionErrorDetail, len(rejected))
		for i, r := range rejected {
			details[i] = wire.PermissionErrorDetail{Stream: string(r.Descriptor), RequiredPermission: r.RequiredPermission}
		}
		if ch, ok := sess.TPAChannel(packageName); ok {
			if err := ch.Conn.SendJSON(wire.PermissionError{Type: "permission_error", Details: details}); err != nil {
				sess.Logger.Warn("failed to send permission_error", "package_name", packageName, "error", err)
			}
		}
	}

	if sess.Mic != nil {
		sess.Mic.Request(sess.Subscriptions.AnyMediaSubs())
	}
	if rt.transcribe != nil {
		rt.transcribe.UpdateStreams(sess.Subscriptions.MinimalLanguageSubs())
	}
}

func (h *TPAHandler) handlePhotoRequest(sess *session.Session, packageName string, saveToGallery bool) {
	responder := &tpaPhotoResponder{sess: sess, packageName: packageName, metrics: h.metrics}
	requestID := sess.Photos.CreateTPA(sess.ID, packageName, responder, saveToGallery, 0)
	h.analytics.TrackEvent("photo_requested", sess.ID, map[string]any{"package_name": packageName, "save_to_gallery": saveToGallery})

	conn := sess.GlassesConn()
	if conn == nil {
		return
	}
	if err := conn.SendJSON(wire.PhotoRequest{Type: "photo_request", RequestID: requestID, AppID: packageName}); err != nil {
		sess.Logger.Warn("failed to send photo_request", "package_name", packageName, "error", err)
	}
}

// tpaPhotoResponder delivers a photo_response or photo_timeout_error back
// to the TPA channel that requested it, if still admitted.
type tpaPhotoResponder struct {
	sess        *session.Session
	packageName string
	metrics     *observe.Metrics
}

var _ photo.Responder = (*tpaPhotoResponder)(nil)

func (r *tpaPhotoResponder) SendPhotoResponse(requestID, photoURL string) {
	ch, ok := r.sess.TPAChannel(r.packageName)
	if !ok {
		return
	}
	if err := ch.Conn.SendJSON(wire.PhotoResponse{Type: "photo_response", RequestID: requestID, PhotoURL: photoURL}); err != nil {
		r.sess.Logger.Warn("failed to deliver photo_response", "package_name", r.packageName, "error", err)
	}
}

func (r *tpaPhotoResponder) SendPhotoTimeout(requestID string) {
	r.metrics.RecordPhotoTimeout(context.Background())
	ch, ok := r.sess.TPAChannel(r.packageName)
	if !ok {
		return
	}
	if err := ch.Conn.SendJSON(wire.PhotoTimeoutError{Type: "photo_timeout_error", RequestID: requestID}); err != nil {
		r.sess.Logger.Warn("failed to deliver photo_timeout_error", "package_name", r.packageName, "error", err)
	}
}
