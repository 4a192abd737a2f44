package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/muid-io/tracehub/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultPollBase = 30 * time.Second
	pollJitter      = 0.2
	fetchTimeout    = 5 * time.Second
)

// configPayload mirrors the server's /tracing/config response.
type configPayload struct {
	Version     uint64           `json:"version"`
	DefaultRate float64          `json:"default_rate"`
	WarmRate    float64          `json:"warm_rate"`
	HotSet      map[string]int64 `json:"hot_set"`
}

// gateConfig is the immutable decision table ShouldTrace reads. A new one
// is swapped in atomically on every config change; readers always see
// either the old or the new table, never a mix.
type gateConfig struct {
	defaultRate float64
	hot         map[string]time.Time
}

// coldConfig traces nothing. It is the state before the first successful
// poll and the state any fetch failure falls back to: silence always means
// "trace nothing", never "trace everything".
var coldConfig = &gateConfig{defaultRate: 0}

// Gate makes the per-event emit/skip decision for an instrumented process.
// A background task polls the TraceHub config endpoint; ShouldTrace itself
// is a map lookup plus at most one random draw, with no I/O ever.
type Gate struct {
	baseURL    string
	httpClient *http.Client
	pollBase   time.Duration

	config atomic.Pointer[gateConfig]
	cancel context.CancelFunc
	done   chan struct{}
}

type GateOption func(*Gate)

func WithGateHTTPClient(httpClient *http.Client) GateOption {
	return func(g *Gate) { g.httpClient = httpClient }
}

func WithPollInterval(base time.Duration) GateOption {
	return func(g *Gate) { g.pollBase = base }
}

// NewGate starts the poll task immediately. Callers must Close the gate on
// shutdown.
func NewGate(baseURL string, opts ...GateOption) *Gate {
	ctx, cancel := context.WithCancel(context.Background())

	gate := &Gate{
		baseURL:    trimSlash(baseURL),
		httpClient: &http.Client{Timeout: fetchTimeout},
		pollBase:   defaultPollBase,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(gate)
	}

	gate.config.Store(coldConfig)
	go gate.poll(ctx)

	return gate
}

// ShouldTrace reports whether an event for the correlation id should be
// emitted. HOT ids always trace; everything else draws against the
// server-supplied default rate. O(1), no locks held, no I/O.
func (g *Gate) ShouldTrace(correlationID string) bool {
	config := g.config.Load()

	if expiry, ok := config.hot[correlationID]; ok {
		if time.Now().Before(expiry) {
			return true
		}
		// locally expired: the next poll will drop it server-side too
	}

	rate := config.defaultRate
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	default:
		return rand.Float64() < rate
	}
}

// Close stops the poll task and waits for it to exit. An in-flight fetch
// is aborted by context cancellation, not awaited.
func (g *Gate) Close() {
	g.cancel()
	<-g.done
}

func (g *Gate) poll(ctx context.Context) {
	defer close(g.done)

	etag := ""

	// fetch once right away so a freshly started process does not stay
	// cold for a full interval when the server is up
	etag = g.fetch(ctx, etag)

	for {
		timer := time.NewTimer(g.jittered())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			etag = g.fetch(ctx, etag)
		}
	}
}

// jittered spreads polls uniformly within ±20% of the base interval so
// that many processes restarting together do not synchronize into storms.
func (g *Gate) jittered() time.Duration {
	spread := 1 - pollJitter + 2*pollJitter*rand.Float64()
	return time.Duration(float64(g.pollBase) * spread)
}

// fetch refreshes the cached config and returns the validation token to
// present next time. Any failure, including a malformed payload, swaps in
// the cold config: the gate only ever fails toward less tracing.
func (g *Gate) fetch(ctx context.Context, etag string) string {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/tracing/config", nil)
	if err != nil {
		g.config.Store(coldConfig)
		return ""
	}
	if etag != "" {
		request.Header.Set("If-None-Match", etag)
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		g.config.Store(coldConfig)
		return ""
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusNotModified:
		// nothing changed; hot TTLs keep counting down locally
		return etag

	case http.StatusOK:
		payload, err := decodeConfig(response.Body)
		if err != nil {
			logger.Warn(ctx, "malformed sampling config, falling back to cold", zap.Error(err))
			g.config.Store(coldConfig)
			return ""
		}

		now := time.Now()
		hot := make(map[string]time.Time, len(payload.HotSet))
		for correlationID, ttl := range payload.HotSet {
			hot[correlationID] = now.Add(time.Duration(ttl) * time.Second)
		}

		g.config.Store(&gateConfig{
			defaultRate: payload.DefaultRate,
			hot:         hot,
		})
		return response.Header.Get("ETag")

	default:
		g.config.Store(coldConfig)
		return ""
	}
}

func decodeConfig(body io.Reader) (*configPayload, error) {
	payload := &configPayload{}
	if err := json.NewDecoder(body).Decode(payload); err != nil {
		return nil, fmt.Errorf("decode sampling config: %w", err)
	}
	if payload.DefaultRate < 0 || payload.DefaultRate > 1 {
		return nil, fmt.Errorf("sampling config default_rate out of range: %v", payload.DefaultRate)
	}
	return payload, nil
}

func trimSlash(url string) string {
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}
