// Package routing implements the Routing Engine (C8): for each inbound
// glasses event, look up the TPAs currently subscribed to its stream type
// and dispatch framed copies, with a dedicated binary fast path for audio
// and a one-event cache replayed to a TPA on new subscription.
package routing

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/augmentcore/corehub/internal/core/session"
	"github.com/augmentcore/corehub/internal/observe"
	"github.com/augmentcore/corehub/internal/wire"
	"github.com/augmentcore/corehub/pkg/audio"
)

// cachedState holds the most recent single event per replayable stream
// type, keyed by session id, so a TPA that subscribes after the event
// already happened still sees the current value instead of waiting for
// the next occurrence.
type cachedState struct {
	location *wire.LocationUpdate
	calendar *wire.CalendarEvent
}

// Decoder normalizes a raw inbound audio frame into PCM before the audio
// fast path fans it out. A nil Decoder means pass-through: the engine
// writes whatever bytes it was given.
type Decoder interface {
	Decode(frame audio.AudioFrame) ([]byte, error)
}

// Engine fans out routed events to subscribed TPA channels.
type Engine struct {
	logger  *slog.Logger
	metrics *observe.Metrics
	decoder Decoder

	mu    sync.Mutex
	cache map[string]*cachedState
}

// New returns an Engine. metrics may be nil to use the process default.
// decoder may be nil for pass-through audio delivery.
func New(logger *slog.Logger, metrics *observe.Metrics, decoder Decoder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{logger: logger, metrics: metrics, decoder: decoder, cache: make(map[string]*cachedState)}
}

// Broadcast dispatches data, tagged as streamType, to every TPA channel in
// sess currently subscribed to it, concurrently. Individual delivery
// failures are logged but do not fail the broadcast as a whole.
func (e *Engine) Broadcast(ctx context.Context, sess *session.Session, streamType wire.StreamType, data any) {
	e.BroadcastDescriptor(ctx, sess, wire.Descriptor(streamType), data)
}

// BroadcastDescriptor is [Engine.Broadcast] generalized to a full, possibly
// language-parameterized descriptor (e.g. "transcription:en-US"): matching
// against each TPA's subscription set uses descriptor directly, and the
// outbound frame's streamType field carries the full descriptor string so
// the TPA can tell which language produced it.
func (e *Engine) BroadcastDescriptor(ctx context.Context, sess *session.Session, descriptor wire.Descriptor, data any) {
	e.recordForReplay(sess.ID, descriptor.BaseType(), data)

	subscribers := sess.Subscriptions.SubscribersOf(descriptor)
	if len(subscribers) == 0 {
		return
	}

	e.metrics.RecordBroadcast(ctx, string(descriptor))

	g, _ := errgroup.WithContext(ctx)
	for _, packageName := range subscribers {
		ch, ok := sess.TPAChannel(packageName)
		if !ok {
			continue
		}
		g.Go(func() error {
			frame := wire.DataStream{
				Type:       "data_stream",
				SessionID:  ch.VirtualID,
				StreamType: string(descriptor),
				Data:       data,
			}
			if err := ch.Conn.SendJSON(frame); err != nil {
				e.logger.Warn("failed to deliver data_stream frame",
					"package_name", packageName, "stream_type", descriptor, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// BroadcastAudio decodes frame (if a Decoder was configured; otherwise uses
// frame.Data verbatim) and writes the resulting PCM directly to every TPA
// channel subscribed to the audio fast path, bypassing JSON marshaling. It
// returns the decoded PCM (or nil if the frame was dropped) so the caller
// can also feed it to the session's transcription engine, which runs
// independently of whether any TPA holds a raw audio_chunk subscription.
func (e *Engine) BroadcastAudio(ctx context.Context, sess *session.Session, frame audio.AudioFrame) []byte {
	pcm := frame.Data
	if e.decoder != nil {
		decoded, err := e.decoder.Decode(frame)
		if err != nil {
			e.logger.Warn("audio decode failed, dropping frame", "session_id", sess.ID, "error", err)
			return nil
		}
		if decoded == nil {
			return nil
		}
		pcm = decoded
	}

	subscribers := sess.Subscriptions.SubscribersOf(wire.Descriptor(wire.StreamAudioChunk))
	if len(subscribers) == 0 {
		return pcm
	}

	e.metrics.RecordBroadcast(ctx, string(wire.StreamAudioChunk))

	g, _ := errgroup.WithContext(ctx)
	for _, packageName := range subscribers {
		ch, ok := sess.TPAChannel(packageName)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := ch.Conn.SendBinary(pcm); err != nil {
				e.logger.Warn("failed to deliver audio frame", "package_name", packageName, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return pcm
}

// ReplayCacheOnSubscribe pushes the cached location and/or calendar event
// to packageName's channel if its new subscription set covers them,
// called right after a subscription_update is applied.
func (e *Engine) ReplayCacheOnSubscribe(sess *session.Session, packageName string, newSubs []wire.Descriptor) {
	e.mu.Lock()
	cached := e.cache[sess.ID]
	e.mu.Unlock()
	if cached == nil {
		return
	}
	ch, ok := sess.TPAChannel(packageName)
	if !ok {
		return
	}

	for _, d := range newSubs {
		switch {
		case cached.location != nil && d.Matches(wire.Descriptor(wire.StreamLocationUpdate)):
			e.send(ch, wire.StreamLocationUpdate, *cached.location)
		case cached.calendar != nil && d.Matches(wire.Descriptor(wire.StreamCalendarEvent)):
			e.send(ch, wire.StreamCalendarEvent, *cached.calendar)
		}
	}
}

func (e *Engine) send(ch *session.TPAChannel, streamType wire.StreamType, data any) {
	frame := wire.DataStream{
		Type:       "data_stream",
		SessionID:  ch.VirtualID,
		StreamType: string(streamType),
		Data:       data,
	}
	if err := ch.Conn.SendJSON(frame); err != nil {
		e.logger.Warn("failed to replay cached event", "package_name", ch.PackageName, "stream_type", streamType, "error", err)
	}
}

func (e *Engine) recordForReplay(sessionID string, streamType wire.StreamType, data any) {
	switch streamType {
	case wire.StreamLocationUpdate:
		loc, ok := data.(wire.LocationUpdate)
		if !ok {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		state := e.ensureCache(sessionID)
		state.location = &loc
	case wire.StreamCalendarEvent:
		ev, ok := data.(wire.CalendarEvent)
		if !ok {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		state := e.ensureCache(sessionID)
		state.calendar = &ev
	}
}

func (e *Engine) ensureCache(sessionID string) *cachedState {
	state, ok := e.cache[sessionID]
	if !ok {
		state = &cachedState{}
		e.cache[sessionID] = state
	}
	return state
}

// ClearCache drops the replay cache for sessionID, called on session end.
func (e *Engine) ClearCache(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, sessionID)
}
