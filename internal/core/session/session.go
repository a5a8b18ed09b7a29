// Package session implements the Session Aggregate (C5) and Session
// Registry (C6): the per-user state container that owns the heartbeat
// monitor, subscription manager, photo correlator, microphone coordinator,
// transcript store, and audio buffer, plus the registry mapping userId to
// its session.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/augmentcore/corehub/internal/core/heartbeat"
	"github.com/augmentcore/corehub/internal/core/mic"
	"github.com/augmentcore/corehub/internal/core/photo"
	"github.com/augmentcore/corehub/internal/core/subscription"
	"github.com/augmentcore/corehub/internal/wire"
)

// ReconnectGrace is how long a TPA channel entry is kept in the active set
// after its socket closes, to permit a reconnect without losing
// subscription or active-app state.
const ReconnectGrace = 5 * time.Second

// CleanupGrace is how long a session is kept after its glasses socket
// closes before the registry ends it.
const CleanupGrace = 45 * time.Second

// Sender is the minimal outbound surface the session needs from a
// WebSocket connection, implemented by internal/wsfront.
type Sender interface {
	SendJSON(v any) error
	SendBinary(data []byte) error
	Close(code int, reason string) error
}

// DisplayManager and DashboardManager are late-bound collaborator handles.
// Session holds only interface references to them — neither ever reaches
// back into Session state directly, only by receiving it as a method
// argument, so the two sides have a one-way dependency instead of the
// cyclic import the original design used.
type DisplayManager interface {
	HandleAppStart(userID, packageName string)
	HandleAppStop(userID, packageName string)
}

type DashboardManager interface {
	HandleContentUpdate(userID string, payload map[string]any)
	HandleModeChange(userID, mode string)
}

// TPAChannel is one admitted TPA WebSocket connection within a session.
type TPAChannel struct {
	PackageName string
	VirtualID   string
	Conn        Sender
	ConnectedAt time.Time
}

// Session is the per-userId aggregate: socket references, sub-manager
// instances, and connection-lifecycle bookkeeping.
type Session struct {
	ID        string
	StartTime time.Time
	Logger    *slog.Logger

	Subscriptions *subscription.Manager
	Photos        *photo.Correlator
	Heartbeat     *heartbeat.Monitor
	Mic           *mic.Coordinator
	Transcript    *TranscriptStore
	Audio         *AudioBuffer

	Display   DisplayManager
	Dashboard DashboardManager

	mu              sync.Mutex
	glasses         Sender
	tpaChannels     map[string]*TPAChannel
	activeApps      []string
	loadingApps     map[string]struct{}
	disconnectedAt  *time.Time
	cleanupTimer    *time.Timer
	reconnectTimers map[string]*time.Timer
	settings        map[string]any
	installedApps   []string
	isTranscribing  bool
}

// New allocates a Session with all sub-managers constructed fresh.
func New(userID string, logger *slog.Logger, display DisplayManager, dashboard DashboardManager) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("user_id", userID)
	s := &Session{
		ID:              userID,
		StartTime:       time.Now(),
		Logger:          logger,
		Subscriptions:   subscription.New(logger),
		Photos:          photo.New(),
		Transcript:      NewTranscriptStore(),
		Audio:           NewAudioBuffer(),
		Display:         display,
		Dashboard:       dashboard,
		tpaChannels:     make(map[string]*TPAChannel),
		loadingApps:     make(map[string]struct{}),
		reconnectTimers: make(map[string]*time.Timer),
		settings:        make(map[string]any),
	}
	s.Heartbeat = heartbeat.New(s.onConnectionTerminated)
	return s
}

func (s *Session) onConnectionTerminated(id string, kind heartbeat.Kind, record heartbeat.Record) {
	s.Logger.Warn("connection terminated by heartbeat monitor",
		"connection_id", id, "kind", kind, "uptime", record.Uptime)
	if kind == heartbeat.KindGlasses {
		s.MarkDisconnected()
		return
	}
	s.RemoveTPAChannel(id)
}

// Reactivate rebinds a glasses connection to an existing session: cancels
// any pending cleanup timer, clears disconnectedAt, and refreshes the
// installed-apps snapshot. Used for idempotent reconnect per §4.5.
func (s *Session) Reactivate(glassesConn Sender, installedApps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
	s.glasses = glassesConn
	s.disconnectedAt = nil
	s.installedApps = installedApps
}

// GlassesConn returns the current glasses socket reference, or nil if none
// is attached.
func (s *Session) GlassesConn() Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.glasses
}

// MarkDisconnected stamps disconnectedAt and stops transcription, keeping
// the socket reference so in-flight handlers can detect staleness. Any
// pending cleanup timer is cancelled first since this call is what (re)arms
// it via the registry.
func (s *Session) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
	now := time.Now()
	s.disconnectedAt = &now
	s.isTranscribing = false
	if s.Mic != nil {
		s.Mic.Flush()
	}
}

// IsDisconnected reports whether the glasses side is currently marked
// disconnected.
func (s *Session) IsDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectedAt != nil
}

// ArmCleanup schedules onExpire to run after CleanupGrace, unless a new
// glasses connect reactivates the session first. Any existing timer is
// replaced.
func (s *Session) ArmCleanup(onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	s.cleanupTimer = time.AfterFunc(CleanupGrace, onExpire)
}

// AddTPAChannel admits a TPA channel, cancelling any pending reconnect
// timer for the same package name.
func (s *Session) AddTPAChannel(packageName string, conn Sender) *TPAChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.reconnectTimers[packageName]; ok {
		t.Stop()
		delete(s.reconnectTimers, packageName)
	}
	ch := &TPAChannel{
		PackageName: packageName,
		VirtualID:   wire.VirtualSessionID(s.ID, packageName),
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	s.tpaChannels[packageName] = ch
	return ch
}

// TPAChannel returns the admitted channel for packageName, if any.
func (s *Session) TPAChannel(packageName string) (*TPAChannel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.tpaChannels[packageName]
	return ch, ok
}

// HasAdmittedChannel reports whether packageName currently has an admitted
// TPA channel.
func (s *Session) HasAdmittedChannel(packageName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tpaChannels[packageName]
	return ok
}

// TPAChannels returns a snapshot of all currently admitted TPA channels.
func (s *Session) TPAChannels() []*TPAChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TPAChannel, 0, len(s.tpaChannels))
	for _, ch := range s.tpaChannels {
		out = append(out, ch)
	}
	return out
}

// RemoveTPAChannel removes packageName's channel entry and cancels its
// photo requests. Callers that want a reconnect grace window call
// ArmReconnectGrace separately; an explicit stop skips that call.
func (s *Session) RemoveTPAChannel(packageName string) {
	s.mu.Lock()
	delete(s.tpaChannels, packageName)
	if t, ok := s.reconnectTimers[packageName]; ok {
		t.Stop()
		delete(s.reconnectTimers, packageName)
	}
	s.mu.Unlock()
	s.Photos.CancelAllForApp(packageName)
}

// ArmReconnectGrace schedules onExpire to run after ReconnectGrace unless
// AddTPAChannel re-admits packageName first.
func (s *Session) ArmReconnectGrace(packageName string, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.reconnectTimers[packageName]; ok {
		t.Stop()
	}
	s.reconnectTimers[packageName] = time.AfterFunc(ReconnectGrace, onExpire)
}

// AddActiveApp appends packageName to the ordered active-app list and
// clears it from loadingApps, if present.
func (s *Session) AddActiveApp(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loadingApps, packageName)
	for _, p := range s.activeApps {
		if p == packageName {
			return
		}
	}
	s.activeApps = append(s.activeApps, packageName)
}

// RemoveActiveApp removes packageName from the active-app list.
func (s *Session) RemoveActiveApp(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.activeApps {
		if p == packageName {
			s.activeApps = append(s.activeApps[:i], s.activeApps[i+1:]...)
			return
		}
	}
}

// ActiveApps returns a snapshot of the ordered active-app list.
func (s *Session) ActiveApps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.activeApps))
	copy(out, s.activeApps)
	return out
}

// MarkLoading adds packageName to the loading set. IsLoadingOrActive
// reports whether Start should be treated as idempotent.
func (s *Session) MarkLoading(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingApps[packageName] = struct{}{}
}

// UnmarkLoading removes packageName from the loading set.
func (s *Session) UnmarkLoading(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loadingApps, packageName)
}

// IsLoadingOrActive reports whether packageName is currently loading or
// already active.
func (s *Session) IsLoadingOrActive(packageName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, loading := s.loadingApps[packageName]; loading {
		return true
	}
	for _, p := range s.activeApps {
		if p == packageName {
			return true
		}
	}
	return false
}

// SetSettings replaces the OS settings snapshot (brightness, volume, etc).
func (s *Session) SetSettings(settings map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Settings returns the current OS settings snapshot.
func (s *Session) Settings() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetTranscribing records whether the transcription engine is currently
// running for this session.
func (s *Session) SetTranscribing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isTranscribing = v
}

// IsTranscribing reports whether the transcription engine is currently
// believed to be running.
func (s *Session) IsTranscribing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTranscribing
}

// End performs final teardown per §4.5: clear all reconnection timers,
// close each TPA channel with code 1001, and release the heartbeat
// monitor. The caller is responsible for removing the session from the
// registry.
func (s *Session) End() {
	s.mu.Lock()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	for _, t := range s.reconnectTimers {
		t.Stop()
	}
	channels := make([]*TPAChannel, 0, len(s.tpaChannels))
	for _, ch := range s.tpaChannels {
		channels = append(channels, ch)
	}
	s.tpaChannels = make(map[string]*TPAChannel)
	s.mu.Unlock()

	s.Heartbeat.Stop()
	if s.Mic != nil {
		s.Mic.Flush()
	}

	for _, ch := range channels {
		if err := ch.Conn.Close(1001, "session ended"); err != nil {
			s.Logger.Warn("error closing TPA channel during teardown",
				"package_name", ch.PackageName, "error", err)
		}
	}
}
