package wsfront

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/augmentcore/corehub/internal/collab"
	"github.com/augmentcore/corehub/internal/core/heartbeat"
	"github.com/augmentcore/corehub/internal/core/lifecycle"
	"github.com/augmentcore/corehub/internal/core/routing"
	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/observe"
	"github.com/augmentcore/corehub/internal/wire"
	"github.com/augmentcore/corehub/pkg/audio"
)

// Inbound glasses binary audio frames are assumed to carry an 8-byte
// big-endian sequence number header followed by raw 16kHz mono PCM,
// matching the capture format the device's microphone driver emits. There
// is no wire-level timestamp; frames are assumed to arrive at a nominal
// 20ms cadence for audio buffer diagnostics.
const (
	audioFrameHeaderSize = 8
	inboundSampleRate    = 16000
	inboundChannels      = 1
	audioFrameDuration   = 20 * time.Millisecond
)

// inboundEnvelope extracts just the discriminator field so the full typed
// struct can be unmarshaled once the message kind is known.
type inboundEnvelope struct {
	Type string `json:"type"`
}

// GlassesHandler upgrades /glasses-ws requests and dispatches every
// subsequent frame through the owning session's serial event queue.
type GlassesHandler struct {
	manager   *Manager
	lifecycle *lifecycle.Controller
	routing   *routing.Engine
	auth      GlassesAuthenticator
	analytics collab.EventTracker
	upgrader  websocket.Upgrader
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// NewGlassesHandler returns a GlassesHandler. logger, metrics, and analytics
// may be nil; analytics defaults to a logging-only tracker.
func NewGlassesHandler(manager *Manager, lc *lifecycle.Controller, routingEngine *routing.Engine, auth GlassesAuthenticator, analytics collab.EventTracker, metrics *observe.Metrics, logger *slog.Logger) *GlassesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if analytics == nil {
		analytics = collab.NewLoggingAnalytics(logger)
	}
	return &GlassesHandler{
		manager:   manager,
		lifecycle: lc,
		routing:   routingEngine,
		auth:      auth,
		analytics: analytics,
		metrics:   metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Glasses are native clients, not browsers; origin checking is
			// the front proxy's concern, not this upgrade's.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *GlassesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.auth.Authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("glasses upgrade failed", "user_id", userID, "error", err)
		return
	}
	c := newConn(ws)

	sess, rt, reconnected := h.manager.GetOrCreate(userID, c, nil)
	connID := "glasses:" + userID
	sess.Heartbeat.Register(connID, heartbeat.KindGlasses, c)
	h.metrics.ActiveSessions.Add(context.Background(), 1)

	ws.SetPongHandler(func(appData string) error {
		sess.Heartbeat.RecordPong(connID, latencySince(appData))
		return nil
	})

	sess.Logger.Info("glasses connected", "reconnected", reconnected)
	h.analytics.TrackEvent("glasses_connected", userID, map[string]any{"reconnected": reconnected})

	ack := wire.ConnectionAck{Type: "connection_ack", SessionID: sess.ID, UserSession: sess.ID}
	if err := c.SendJSON(ack); err != nil {
		h.logger.Warn("failed to send connection_ack", "user_id", userID, "error", err)
		c.Close(1011, "ack failed")
		return
	}

	h.readLoop(ws, sess, rt, connID, userID)
}

func (h *GlassesHandler) readLoop(ws *websocket.Conn, sess *session.Session, rt *sessionRuntime, connID, userID string) {
	defer h.handleClose(connID, userID)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		sess.Heartbeat.RecordActivity(connID, len(data))

		switch messageType {
		case websocket.BinaryMessage:
			h.handleAudioFrame(sess, rt, data)
		case websocket.TextMessage:
			h.dispatchText(sess, rt, userID, data)
		}
	}
}

func (h *GlassesHandler) handleClose(connID, userID string) {
	if sess, ok := h.manager.registry.Get(userID); ok {
		sess.Heartbeat.Unregister(connID)
	}
	h.metrics.ActiveSessions.Add(context.Background(), -1)
	h.analytics.TrackEvent("glasses_disconnected", userID, nil)
	h.manager.MarkDisconnected(userID, func() {
		h.manager.CleanupIfStillDisconnected(userID)
	})
}

func (h *GlassesHandler) handleAudioFrame(sess *session.Session, rt *sessionRuntime, data []byte) {
	if len(data) < audioFrameHeaderSize {
		return
	}
	seq := binary.BigEndian.Uint64(data[:audioFrameHeaderSize])
	payload := append([]byte(nil), data[audioFrameHeaderSize:]...)

	rt.submit(func() {
		frame := session.AudioFrame{
			Data:       payload,
			SampleRate: inboundSampleRate,
			Channels:   inboundChannels,
			Sequence:   seq,
			Timestamp:  time.Duration(seq) * audioFrameDuration,
		}
		for _, ready := range sess.Audio.Push(frame) {
			h.deliverAudio(sess, rt, ready)
		}
	})
}

func (h *GlassesHandler) deliverAudio(sess *session.Session, rt *sessionRuntime, frame session.AudioFrame) {
	pcm := h.routing.BroadcastAudio(context.Background(), sess, audio.AudioFrame{
		Data:       frame.Data,
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
		Timestamp:  frame.Timestamp,
	})
	if pcm != nil && rt.transcribe != nil {
		rt.transcribe.Feed(pcm)
	}
}

func (h *GlassesHandler) dispatchText(sess *session.Session, rt *sessionRuntime, userID string, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("malformed glasses frame", "user_id", userID, "error", err)
		return
	}
	rt.submit(func() {
		h.handle(sess, env.Type, data)
	})
}

func (h *GlassesHandler) handle(sess *session.Session, msgType string, raw []byte) {
	ctx := context.Background()
	switch msgType {
	case "connection_init":
		// Already handled at upgrade time; a repeat on the same socket is a
		// harmless no-op.

	case "start_app":
		var msg wire.StartApp
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if err := h.lifecycle.Start(ctx, sess, msg.PackageName); err != nil {
			h.sendError(sess, err.Error())
		} else {
			h.analytics.TrackEvent("app_started", sess.ID, map[string]any{"package_name": msg.PackageName})
		}

	case "stop_app":
		var msg wire.StopApp
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		h.lifecycle.Stop(ctx, sess, msg.PackageName, "user requested stop")

	case "glasses_connection_state":
		var msg wire.GlassesConnectionState
		json.Unmarshal(raw, &msg)
		sess.Logger.Info("glasses connection state", "status", msg.Status, "model_name", msg.ModelName)

	case "vad":
		var msg wire.VADEvent
		json.Unmarshal(raw, &msg)
		h.routing.Broadcast(ctx, sess, wire.StreamVAD, msg)

	case "location_update":
		var msg wire.LocationUpdate
		json.Unmarshal(raw, &msg)
		h.routing.Broadcast(ctx, sess, wire.StreamLocationUpdate, msg)

	case "calendar_event":
		var msg wire.CalendarEvent
		json.Unmarshal(raw, &msg)
		h.routing.Broadcast(ctx, sess, wire.StreamCalendarEvent, msg)

	case "photo_response":
		var msg wire.PhotoResponse
		json.Unmarshal(raw, &msg)
		sess.Photos.ProcessResponse(msg.RequestID, msg.PhotoURL)

	case "video_stream_response":
		var msg wire.VideoStreamResponse
		json.Unmarshal(raw, &msg)
		if ch, ok := sess.TPAChannel(msg.AppID); ok {
			if err := ch.Conn.SendJSON(msg); err != nil {
				sess.Logger.Warn("failed to forward video_stream_response", "app_id", msg.AppID, "error", err)
			}
		}

	case "settings_update_request":
		if conn := sess.GlassesConn(); conn != nil {
			frame := wire.SettingsUpdate{Type: "settings_update", Settings: sess.Settings()}
			if err := conn.SendJSON(frame); err != nil {
				sess.Logger.Warn("failed to resend settings_update", "error", err)
			}
		}

	case "core_status_update":
		var msg wire.CoreStatusUpdate
		json.Unmarshal(raw, &msg)
		h.routing.Broadcast(ctx, sess, wire.StreamType("core_status_update"), msg.Status)

	default:
		// Generic pass-through events (head_position, button_press,
		// phone_notification, notification_dismissed, open_dashboard, ...):
		// routed verbatim to subscribers of that stream type.
		var payload map[string]any
		json.Unmarshal(raw, &payload)
		h.routing.Broadcast(ctx, sess, wire.StreamType(msgType), payload)
	}
}

func (h *GlassesHandler) sendError(sess *session.Session, message string) {
	conn := sess.GlassesConn()
	if conn == nil {
		return
	}
	if err := conn.SendJSON(wire.ConnectionError{Type: "connection_error", Message: message}); err != nil {
		sess.Logger.Warn("failed to send connection_error", "error", err)
	}
}

// latencySince parses a SendPing-formatted RFC3339Nano payload and returns
// elapsed time since it was sent, or zero if the payload cannot be parsed
// (e.g. a pong answering a ping sent before this process started).
func latencySince(appData string) time.Duration {
	sentAt, err := time.Parse(time.RFC3339Nano, appData)
	if err != nil {
		return 0
	}
	return time.Since(sentAt)
}
