// Package photo implements the photo request/response correlator (C4):
// outstanding capture requests keyed by opaque id, with per-origin timeouts
// and forwarding of the eventual response (or timeout) to the requester.
package photo

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default timeouts per origin, per the external capture-device turnaround
// budget: a TPA-initiated request is expected to round-trip faster than a
// system-initiated one (e.g. gallery save with no waiting caller).
const (
	DefaultSystemTimeout = 60 * time.Second
	DefaultTPATimeout    = 30 * time.Second
)

// Origin distinguishes who asked for the photo.
type Origin string

const (
	OriginSystem Origin = "system"
	OriginTPA    Origin = "tpa"
)

// Responder delivers the eventual photo_response or photo_timeout_error
// frame to the requesting TPA channel. Implementations must be safe to call
// after the channel has closed (a no-op in that case).
type Responder interface {
	SendPhotoResponse(requestID, photoURL string)
	SendPhotoTimeout(requestID string)
}

// request is one outstanding capture.
type request struct {
	id            string
	userID        string
	origin        Origin
	appID         string
	responder     Responder
	saveToGallery bool
	createdAt     time.Time
	timer         *time.Timer
}

// Correlator tracks the outstanding photo requests for a single session.
// All maps are session-scoped: a leak or bug in one session's photo flow
// cannot affect another session's pending requests.
type Correlator struct {
	mu       sync.Mutex
	pending  map[string]*request
	newID    func() string
	nowFunc  func() time.Time
}

// New returns an empty Correlator for one session.
func New() *Correlator {
	return &Correlator{
		pending: make(map[string]*request),
		newID:   func() string { return uuid.NewString() },
		nowFunc: time.Now,
	}
}

// CreateSystem allocates a system-originated capture request and arms its
// timeout. System requests have no responder to notify on timeout — the
// record is simply dropped.
func (c *Correlator) CreateSystem(userID string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultSystemTimeout
	}
	return c.create(userID, OriginSystem, "", nil, true, timeout)
}

// CreateTPA allocates a TPA-originated capture request bound to responder,
// and arms its timeout. On expiry, if responder is still reachable, a
// photo_timeout_error is sent before the record is dropped.
func (c *Correlator) CreateTPA(userID, appID string, responder Responder, saveToGallery bool, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultTPATimeout
	}
	return c.create(userID, OriginTPA, appID, responder, saveToGallery, timeout)
}

func (c *Correlator) create(userID string, origin Origin, appID string, responder Responder, saveToGallery bool, timeout time.Duration) string {
	id := c.newID()
	req := &request{
		id:            id,
		userID:        userID,
		origin:        origin,
		appID:         appID,
		responder:     responder,
		saveToGallery: saveToGallery,
		createdAt:     c.nowFunc(),
	}

	c.mu.Lock()
	c.pending[id] = req
	req.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	c.mu.Unlock()

	return id
}

func (c *Correlator) expire(id string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if req.origin == OriginTPA && req.responder != nil {
		req.responder.SendPhotoTimeout(id)
	}
}

// ProcessResponse delivers photoUrl for a pending request id. For
// TPA-origin requests with a still-reachable responder, the response is
// forwarded before the record is deleted; for system-origin requests the
// record is simply deleted. A second call with the same id (duplicate
// device response, or one arriving after timeout) is a no-op.
func (c *Correlator) ProcessResponse(id, photoURL string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		req.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if req.origin == OriginTPA && req.responder != nil {
		req.responder.SendPhotoResponse(id, photoURL)
	}
}

// Cancel removes a pending request without notifying its responder, used
// when the owning TPA channel itself is torn down.
func (c *Correlator) Cancel(id string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		req.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// CancelAllForApp removes every pending request originated by appID,
// invoked when a TPA channel closes so its in-flight requests don't
// outlive the channel that would have received them.
func (c *Correlator) CancelAllForApp(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, req := range c.pending {
		if req.appID == appID {
			req.timer.Stop()
			delete(c.pending, id)
		}
	}
}

// Len reports the number of outstanding requests, for diagnostics.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
