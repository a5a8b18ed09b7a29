package wsfront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/augmentcore/corehub/internal/collab/asr"
	"github.com/augmentcore/corehub/internal/core/mic"
	"github.com/augmentcore/corehub/internal/core/routing"
	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/core/transcribe"
	"github.com/augmentcore/corehub/internal/wire"
)

// eventQueueSize bounds the per-session serial event queue. A queue this
// deep absorbs a burst of concurrent glasses/TPA traffic without blocking
// the reader goroutines that submit to it.
const eventQueueSize = 256

// sessionRuntime bundles a Session with the transport-level state that
// does not belong in the domain package: the serial event queue every
// glasses/TPA reader submits work to (subscription.Manager and
// mic.Coordinator are documented as unsafe for concurrent use), and the
// transcription engine bound to that session.
type sessionRuntime struct {
	sess       *session.Session
	transcribe *transcribe.Engine
	queue      chan func()
}

func (r *sessionRuntime) run() {
	for fn := range r.queue {
		fn()
	}
}

// submit enqueues fn for serial execution on this session's event queue.
// Blocks if the queue is full, applying backpressure to the calling reader.
func (r *sessionRuntime) submit(fn func()) {
	r.queue <- fn
}

// Manager wraps the session [session.Registry] with the runtime wiring
// (serial event queue, per-session transcription engine) that the registry
// itself does not know about.
type Manager struct {
	registry   *session.Registry
	routing    *routing.Engine
	asrFactory func() asr.Provider
	logger     *slog.Logger

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// NewManager returns a Manager. asrFactory is called once per new session
// to obtain the speech-recognition provider that session's transcription
// engine will drive; it may be nil, or may itself return nil, to disable
// transcription entirely.
func NewManager(registry *session.Registry, routingEngine *routing.Engine, asrFactory func() asr.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   registry,
		routing:    routingEngine,
		asrFactory: asrFactory,
		logger:     logger,
		runtimes:   make(map[string]*sessionRuntime),
	}
}

// GetOrCreate returns the session and runtime for userID, creating both on
// first sight. The bool result reports whether an existing session was
// reactivated rather than created fresh.
func (m *Manager) GetOrCreate(userID string, glassesConn session.Sender, installedApps []string) (*session.Session, *sessionRuntime, bool) {
	sess, existed := m.registry.GetOrCreate(userID, glassesConn, installedApps)

	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	if !ok {
		rt = m.newRuntime(sess)
		m.runtimes[userID] = rt
	}
	m.mu.Unlock()

	return sess, rt, existed
}

// Get returns the runtime for userID, if a session currently exists for it.
func (m *Manager) Get(userID string) (*sessionRuntime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[userID]
	return rt, ok
}

// Submit runs fn on userID's serial event queue, satisfying
// lifecycle.Submitter. It is a silent no-op if the session has already been
// torn down by the time the caller's timer fires.
func (m *Manager) Submit(userID string, fn func()) {
	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	rt.submit(fn)
}

// MarkDisconnected forwards to the underlying registry.
func (m *Manager) MarkDisconnected(userID string, onExpire func()) {
	m.registry.MarkDisconnected(userID, onExpire)
}

// CleanupIfStillDisconnected tears down userID's session and runtime if it
// is still disconnected when the cleanup grace timer fires.
func (m *Manager) CleanupIfStillDisconnected(userID string) {
	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	m.mu.Unlock()
	if !ok || !rt.sess.IsDisconnected() {
		return
	}
	m.End(userID)
}

// End tears down userID's session and releases its runtime unconditionally.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	delete(m.runtimes, userID)
	m.mu.Unlock()
	if ok {
		close(rt.queue)
	}
	m.registry.End(userID)
}

// Len reports the number of tracked sessions, for metrics.
func (m *Manager) Len() int {
	return m.registry.Len()
}

func (m *Manager) newRuntime(sess *session.Session) *sessionRuntime {
	rt := &sessionRuntime{queue: make(chan func(), eventQueueSize)}
	go rt.run()

	var provider asr.Provider
	if m.asrFactory != nil {
		provider = m.asrFactory()
	}

	sink := &transcribeSink{sess: sess, routing: m.routing}
	engine := transcribe.New(provider, sink, m.logger)
	rt.sess = sess
	rt.transcribe = engine

	mc := &micController{sess: sess, engine: engine}
	sess.Mic = mic.New(mc)
	return rt
}

// transcribeSink bridges a [transcribe.Engine]'s recognized-text callback
// to the transcript store and onward to subscribed TPAs via the routing
// engine.
type transcribeSink struct {
	sess    *session.Session
	routing *routing.Engine
}

// OnTranscript implements transcribe.Sink.
func (s *transcribeSink) OnTranscript(language, text string, isFinal bool) {
	s.sess.Transcript.Append(language, session.Segment{Text: text, IsFinal: isFinal, StartedAt: time.Now()})

	descriptor := wire.Descriptor(string(wire.StreamTranscription) + ":" + language)
	s.routing.BroadcastDescriptor(context.Background(), s.sess, descriptor, wire.TranscriptionData{Text: text, IsFinal: isFinal})
}

// micController adapts the debounced mic.Coordinator commit into
// transcription engine start/stop plus the glasses-facing
// microphone_state_change notification.
type micController struct {
	sess   *session.Session
	engine *transcribe.Engine
}

// Enable implements mic.Controller.
func (c *micController) Enable() {
	c.engine.Start(context.Background(), c.sess.Subscriptions.MinimalLanguageSubs())
	c.sess.SetTranscribing(true)
	c.announce(true)
}

// Disable implements mic.Controller.
func (c *micController) Disable() {
	c.engine.Stop()
	c.sess.SetTranscribing(false)
	c.announce(false)
}

func (c *micController) announce(enabled bool) {
	conn := c.sess.GlassesConn()
	if conn == nil {
		return
	}
	frame := wire.MicrophoneStateChange{
		Type:                "microphone_state_change",
		IsMicrophoneEnabled: enabled,
		UserSession:         c.sess.ID,
	}
	if err := conn.SendJSON(frame); err != nil {
		c.sess.Logger.Warn("failed to send microphone_state_change", "error", err)
	}
}
