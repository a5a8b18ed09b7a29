// Package subscription implements the per-session subscription manager
// (C2): the mapping from TPA package name to its stream subscription set,
// with language-parameterized matching and a bounded per-app history log.
package subscription

import (
	"log/slog"
	"time"

	"github.com/augmentcore/corehub/internal/wire"
)

// maxHistoryEntries bounds the per-package history ring so long-lived
// sessions do not grow it without limit.
const maxHistoryEntries = 50

// Action tags a history entry with the operation that produced it.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// HistoryEntry records one subscription-set transition for diagnostics.
type HistoryEntry struct {
	Timestamp time.Time
	Snapshot  []wire.Descriptor
	Action    Action
}

// Manager owns the subscription sets and history for every TPA in one
// session. It is not safe for concurrent use: callers must invoke it only
// from the session's serial event queue.
type Manager struct {
	logger  *slog.Logger
	subs    map[string]map[wire.Descriptor]struct{}
	history map[string][]HistoryEntry
}

// New returns an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		subs:    make(map[string]map[wire.Descriptor]struct{}),
		history: make(map[string][]HistoryEntry),
	}
}

// Update replaces packageName's subscription set. Each raw descriptor is
// normalized (bare "transcription" becomes "transcription:en-US") and
// validated; invalid descriptors are dropped with a log line rather than
// rejecting the whole update. The set is replaced atomically — callers
// never observe a partial merge. A history entry tagged "add" is appended
// if the package had no prior set, else "update".
func (m *Manager) Update(packageName string, raw []string) []wire.Descriptor {
	next := make(map[wire.Descriptor]struct{}, len(raw))
	var snapshot []wire.Descriptor
	for _, r := range raw {
		d := wire.NormalizeSubscription(r)
		if !d.Valid() {
			m.logger.Warn("dropping invalid subscription descriptor",
				"package_name", packageName, "descriptor", r)
			continue
		}
		next[d] = struct{}{}
		snapshot = append(snapshot, d)
	}

	_, existed := m.subs[packageName]
	m.subs[packageName] = next

	action := ActionAdd
	if existed {
		action = ActionUpdate
	}
	m.appendHistory(packageName, snapshot, action)

	return snapshot
}

// Remove deletes packageName's subscription set and history, after logging
// a "remove" entry carrying the prior set.
func (m *Manager) Remove(packageName string) {
	prior := m.snapshotOf(packageName)
	m.appendHistory(packageName, prior, ActionRemove)
	delete(m.subs, packageName)
	delete(m.history, packageName)
}

// SubscribersOf returns the package names subscribed to the given broadcast
// descriptor, per the matching rules in [wire.Descriptor.Matches].
func (m *Manager) SubscribersOf(broadcast wire.Descriptor) []string {
	var out []string
	for packageName, set := range m.subs {
		for stored := range set {
			if stored.Matches(broadcast) {
				out = append(out, packageName)
				break
			}
		}
	}
	return out
}

// HasMediaSubs reports whether packageName currently holds any media
// subscription (audio, transcription, translation, or a language
// parameterization of the latter two).
func (m *Manager) HasMediaSubs(packageName string) bool {
	for d := range m.subs[packageName] {
		if d.IsMediaSubscription() {
			return true
		}
	}
	return false
}

// AnyMediaSubs reports whether any TPA in the session currently holds a
// media subscription.
func (m *Manager) AnyMediaSubs() bool {
	for packageName := range m.subs {
		if m.HasMediaSubs(packageName) {
			return true
		}
	}
	return false
}

// MinimalLanguageSubs returns the union, across all TPAs, of
// language-parameterized descriptors. This is the input the TPA lifecycle
// controller passes to the transcription engine's UpdateStreams call.
func (m *Manager) MinimalLanguageSubs() []wire.Descriptor {
	seen := make(map[wire.Descriptor]struct{})
	var out []wire.Descriptor
	for _, set := range m.subs {
		for d := range set {
			if !d.IsLanguageParameterized() {
				continue
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

// History returns the bounded history log for packageName, oldest first.
func (m *Manager) History(packageName string) []HistoryEntry {
	return m.history[packageName]
}

func (m *Manager) snapshotOf(packageName string) []wire.Descriptor {
	set := m.subs[packageName]
	if len(set) == 0 {
		return nil
	}
	out := make([]wire.Descriptor, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}

func (m *Manager) appendHistory(packageName string, snapshot []wire.Descriptor, action Action) {
	entries := append(m.history[packageName], HistoryEntry{
		Timestamp: time.Now(),
		Snapshot:  snapshot,
		Action:    action,
	})
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	m.history[packageName] = entries
}
