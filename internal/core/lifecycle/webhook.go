package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/augmentcore/corehub/internal/observe"
	"github.com/augmentcore/corehub/internal/resilience"
)

// webhookRetryDelays are the backoff waits between the up-to-2 retries
// after the first attempt: 1s, then 2s.
var webhookRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second}

// WebhookClient POSTs session lifecycle requests to a TPA's webhook
// endpoint, guarded by a per-package circuit breaker and instrumented with
// one OTel span per Post call covering all of its attempts.
type WebhookClient struct {
	httpClient *http.Client
	timeout    time.Duration
	breakers   map[string]*resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// NewWebhookClient returns a WebhookClient with a per-request timeout.
func NewWebhookClient(timeout time.Duration, metrics *observe.Metrics) *WebhookClient {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &WebhookClient{
		httpClient: &http.Client{},
		timeout:    timeout,
		breakers:   make(map[string]*resilience.CircuitBreaker),
		metrics:    metrics,
	}
}

func (w *WebhookClient) breakerFor(packageName string) *resilience.CircuitBreaker {
	if cb, ok := w.breakers[packageName]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "webhook:" + packageName})
	w.breakers[packageName] = cb
	return cb
}

// Post sends body as JSON to url, retrying up to len(webhookRetryDelays)
// additional times on failure with the standing backoff schedule, all
// gated by packageName's circuit breaker.
func (w *WebhookClient) Post(ctx context.Context, packageName, url string, body any) error {
	ctx, span := observe.StartSpan(ctx, "lifecycle.webhook.post")
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	cb := w.breakerFor(packageName)
	var lastErr error
	attempts := 1 + len(webhookRetryDelays)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			w.metrics.RecordWebhookRetry(ctx, packageName)
			select {
			case <-time.After(webhookRetryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		lastErr = cb.Execute(func() error { return w.attempt(ctx, url, payload) })
		w.metrics.WebhookDuration.Record(ctx, time.Since(start).Seconds(),
			observe.Attr("package_name", packageName))

		if lastErr == nil {
			return nil
		}
	}

	w.metrics.RecordWebhookFailure(ctx, packageName)
	return fmt.Errorf("webhook post to %s failed after %d attempts: %w", url, attempts, lastErr)
}

func (w *WebhookClient) attempt(ctx context.Context, url string, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
