// Package heartbeat implements the liveness monitor (C1) shared by glasses
// and TPA sockets: ping/pong tracking, missed-ping escalation, and
// disconnect classification.
package heartbeat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Tuning parameters, identical for both glasses and TPA sockets.
const (
	PingInterval    = 15 * time.Second
	MaxMissedPings  = 3
	CriticalSilence = 45 * time.Second
	TerminateGrace  = 1 * time.Second
)

// Kind distinguishes which scheduler tracks a connection.
type Kind string

const (
	KindGlasses Kind = "glasses"
	KindTPA     Kind = "tpa"
)

// Reason classifies why a tracked connection was disconnected.
type Reason string

const (
	ReasonNormal        Reason = "normal"
	ReasonHealthMonitor Reason = "health_monitor"
	ReasonExplicitStop  Reason = "explicit_stop"
	ReasonNetworkError  Reason = "network_error"
	ReasonUnknown       Reason = "unknown"
)

// ClassifyDisconnect derives a [Reason] from a WebSocket close code and
// reason text, per the mapping: 1000/1001 normal, 4000 health_monitor, a
// reason containing "App stopped" explicit_stop, 1002..1015 network_error,
// else unknown.
func ClassifyDisconnect(code int, reasonText string) Reason {
	switch {
	case code == 1000 || code == 1001:
		return ReasonNormal
	case code == 4000:
		return ReasonHealthMonitor
	case strings.Contains(reasonText, "App stopped"):
		return ReasonExplicitStop
	case code >= 1002 && code <= 1015:
		return ReasonNetworkError
	default:
		return ReasonUnknown
	}
}

// Record is the structured disconnect summary returned when a tracked
// connection is captured (removed from the monitor).
type Record struct {
	Reason       Reason
	Code         int
	Message      string
	Uptime       time.Duration
	TotalBytes   uint64
	MessageCount uint64
	AvgLatency   time.Duration
}

// Pinger is the minimal surface the monitor needs from a tracked
// connection: send a timestamped ping, and force-close with a code and
// reason once critical silence is confirmed.
type Pinger interface {
	SendPing() error
	Close(code int, reason string) error
}

// TerminateFunc is invoked when a tracked connection is force-terminated
// for exceeding the critical silence threshold, after TerminateGrace has
// elapsed.
type TerminateFunc func(id string, kind Kind, record Record)

type tracked struct {
	id           string
	kind         Kind
	conn         Pinger
	startedAt    time.Time
	lastActivity time.Time
	lastPong     time.Time
	missedPings  int
	totalBytes   uint64
	messageCount uint64
	latencySum   time.Duration
	latencyCount int
	pendingClose bool
}

// Monitor tracks liveness for a population of glasses and TPA sockets. One
// Monitor instance is scoped to a single session.
type Monitor struct {
	onTerminate TerminateFunc
	nowFunc     func() time.Time

	mu     sync.Mutex
	conns  map[string]*tracked
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Monitor. onTerminate may be nil if the caller does not need
// a termination callback (the connection is still closed regardless).
func New(onTerminate TerminateFunc) *Monitor {
	return &Monitor{
		onTerminate: onTerminate,
		nowFunc:     time.Now,
		conns:       make(map[string]*tracked),
	}
}

// Register begins tracking conn under id/kind. Call RecordActivity and
// RecordPong as inbound traffic and pong frames arrive.
func (m *Monitor) Register(id string, kind Kind, conn Pinger) {
	now := m.nowFunc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[id] = &tracked{
		id:           id,
		kind:         kind,
		conn:         conn,
		startedAt:    now,
		lastActivity: now,
		lastPong:     now,
	}
}

// Unregister stops tracking id without invoking onTerminate, used when the
// owning session tears the connection down through a different path
// (normal close, explicit stop).
func (m *Monitor) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

// RecordActivity bumps lastActivity, totalBytes and messageCount for id,
// called on every inbound frame. It does not reset missedPings; only
// RecordPong does.
func (m *Monitor) RecordActivity(id string, byteCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.conns[id]
	if !ok {
		return
	}
	t.lastActivity = m.nowFunc()
	t.totalBytes += uint64(byteCount)
	t.messageCount++
}

// RecordPong resets missedPings and lastPong for id and records a latency
// sample, called from the pong handler.
func (m *Monitor) RecordPong(id string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.conns[id]
	if !ok {
		return
	}
	t.missedPings = 0
	t.lastPong = m.nowFunc()
	t.latencySum += latency
	t.latencyCount++
}

// Start launches the two independent ping schedulers — one over glasses
// connections, one over TPA connections — both on PingInterval. The
// schedulers stop when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(2)
	go m.schedule(ctx, KindGlasses)
	go m.schedule(ctx, KindTPA)
}

// Stop halts both schedulers and blocks until they exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) schedule(ctx context.Context, kind Kind) {
	defer m.wg.Done()
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(kind)
		}
	}
}

// tick evaluates every connection of the given kind, per §4.1: increment
// missedPings; below threshold, send another ping; at threshold, compare
// silence against CriticalSilence and either terminate or send one more
// ping.
func (m *Monitor) tick(kind Kind) {
	now := m.nowFunc()

	m.mu.Lock()
	var candidates []*tracked
	for _, t := range m.conns {
		if t.kind == kind && !t.pendingClose {
			candidates = append(candidates, t)
		}
	}
	m.mu.Unlock()

	for _, t := range candidates {
		m.evaluate(t, now)
	}
}

func (m *Monitor) evaluate(t *tracked, now time.Time) {
	m.mu.Lock()
	t.missedPings++
	missed := t.missedPings
	lastPong := t.lastPong
	m.mu.Unlock()

	if missed < MaxMissedPings {
		if err := t.conn.SendPing(); err != nil {
			slog.Warn("heartbeat ping failed", "id", t.id, "kind", t.kind, "error", err)
		}
		return
	}

	silence := now.Sub(lastPong)
	if silence <= CriticalSilence {
		if err := t.conn.SendPing(); err != nil {
			slog.Warn("heartbeat ping failed", "id", t.id, "kind", t.kind, "error", err)
		}
		return
	}

	m.terminate(t, now, silence)
}

func (m *Monitor) terminate(t *tracked, now time.Time, silence time.Duration) {
	m.mu.Lock()
	if t.pendingClose {
		m.mu.Unlock()
		return
	}
	t.pendingClose = true
	record := Record{
		Reason:       ReasonHealthMonitor,
		Code:         4000,
		Message:      "heartbeat: no pong for " + silence.String(),
		Uptime:       now.Sub(t.startedAt),
		TotalBytes:   t.totalBytes,
		MessageCount: t.messageCount,
		AvgLatency:   averageLatency(t),
	}
	m.mu.Unlock()

	if err := t.conn.Close(4000, record.Message); err != nil {
		slog.Warn("heartbeat close failed", "id", t.id, "kind", t.kind, "error", err)
	}

	time.AfterFunc(TerminateGrace, func() {
		m.mu.Lock()
		delete(m.conns, t.id)
		m.mu.Unlock()
		if m.onTerminate != nil {
			m.onTerminate(t.id, t.kind, record)
		}
	})
}

func averageLatency(t *tracked) time.Duration {
	if t.latencyCount == 0 {
		return 0
	}
	return t.latencySum / time.Duration(t.latencyCount)
}
