// Package transcribe adapts the pluggable speech-recognition [asr.Provider]
// into the per-session start/stop/feed/updateStreams surface the routing
// and microphone components drive: start opens one provider stream per
// distinct language currently subscribed, feed fans a PCM frame out to
// every open stream, and updateStreams reconciles the open set against a
// new subscription snapshot without restarting streams whose language is
// still wanted.
package transcribe

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/augmentcore/corehub/internal/collab/asr"
	"github.com/augmentcore/corehub/internal/wire"
)

// Sink receives recognized text as it is produced, tagged with the
// language it was recognized in, for dispatch to the transcript store and
// onward to subscribed TPAs.
type Sink interface {
	OnTranscript(language string, text string, isFinal bool)
}

// Engine manages a session's set of open per-language recognition streams
// against one underlying provider.
type Engine struct {
	provider asr.Provider
	logger   *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	streams map[string]asr.SessionHandle
	sink    Sink
}

// New returns an Engine bound to provider. sink receives every recognized
// segment until Stop is called.
func New(provider asr.Provider, sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider: provider,
		logger:   logger,
		streams:  make(map[string]asr.SessionHandle),
		sink:     sink,
	}
}

// Start opens one provider stream per language in languages. Calling Start
// while already running first stops every existing stream.
func (e *Engine) Start(parent context.Context, languages []wire.Descriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	e.ctx = ctx
	e.cancel = cancel

	for _, lang := range dedupLanguages(languages) {
		e.openLocked(lang)
	}
}

// UpdateStreams reconciles the open language set against a fresh
// subscription snapshot: languages no longer requested are closed,
// newly-requested languages are opened, unaffected streams are untouched.
func (e *Engine) UpdateStreams(languages []wire.Descriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wanted := make(map[string]struct{})
	for _, lang := range dedupLanguages(languages) {
		wanted[lang] = struct{}{}
	}

	for lang, handle := range e.streams {
		if _, ok := wanted[lang]; !ok {
			handle.Close()
			delete(e.streams, lang)
		}
	}
	for lang := range wanted {
		if _, ok := e.streams[lang]; !ok {
			e.openLocked(lang)
		}
	}
}

// Feed delivers a PCM chunk to every open stream.
func (e *Engine) Feed(chunk []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for lang, handle := range e.streams {
		if err := handle.SendAudio(chunk); err != nil {
			e.logger.Warn("failed to feed audio to recognition stream", "language", lang, "error", err)
		}
	}
}

// Stop closes every open stream and releases the engine's context.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	for lang, handle := range e.streams {
		handle.Close()
		delete(e.streams, lang)
	}
}

func (e *Engine) openLocked(lang string) {
	if e.ctx == nil {
		return
	}
	handle, err := e.provider.StartStream(e.ctx, asr.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Language:   lang,
	})
	if err != nil {
		e.logger.Warn("failed to open recognition stream", "language", lang, "error", err)
		return
	}
	e.streams[lang] = handle
	go e.pump(lang, handle)
}

func (e *Engine) pump(lang string, handle asr.SessionHandle) {
	for {
		select {
		case t, ok := <-handle.Partials():
			if !ok {
				return
			}
			e.sink.OnTranscript(lang, t.Text, false)
		case t, ok := <-handle.Finals():
			if !ok {
				return
			}
			e.sink.OnTranscript(lang, t.Text, true)
		}
	}
}

// dedupLanguages extracts the language tag from each language-parameterized
// descriptor, deduplicating repeats. Translation descriptors contribute
// their source language, since that is what must be fed to the recognizer.
func dedupLanguages(descriptors []wire.Descriptor) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range descriptors {
		lang := languageOf(d)
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}

func languageOf(d wire.Descriptor) string {
	_, param, hasParam := strings.Cut(string(d), ":")
	if !hasParam {
		return ""
	}
	src, _, isTranslation := strings.Cut(param, "-to-")
	if isTranslation {
		return src
	}
	return param
}
