package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/muid-io/tracehub/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureServer struct {
	mu      sync.Mutex
	traces  []*db.Trace
	batches int
	secret  string
}

func (c *captureServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.secret != "" && r.Header.Get("X-TraceHub-Secret") != c.secret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var request struct {
			Traces []*db.Trace `json:"traces"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		c.mu.Lock()
		c.traces = append(c.traces, request.Traces...)
		c.batches++
		c.mu.Unlock()
	}
}

func (c *captureServer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.traces)
}

func TestSenderDeliversBatches(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	sender := NewSender(server.URL, WithBatchSize(2), WithFlushInterval(10*time.Millisecond))
	defer sender.Close()

	for i := 0; i < 3; i++ {
		entry := NewEntry("svc-a", "corr-1", "->", "GET /api/orders", "/api/orders", nil)
		require.True(t, sender.Send(entry))
	}

	require.Eventually(t, func() bool {
		return capture.count() == 3
	}, time.Second, 5*time.Millisecond)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	assert.Equal(t, "svc-a", capture.traces[0].SourceID)
	assert.Equal(t, "corr-1", capture.traces[0].CorrelationID)
	assert.NotEmpty(t, capture.traces[0].Suffix)
	assert.NotZero(t, capture.traces[0].Timestamp)
}

func TestSenderSendsSecret(t *testing.T) {
	capture := &captureServer{secret: "hunter2"}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	sender := NewSender(server.URL, WithSecret("hunter2"), WithFlushInterval(10*time.Millisecond))
	defer sender.Close()

	require.True(t, sender.Send(NewEntry("svc-a", "corr-1", "->", "op", "/api", nil)))

	require.Eventually(t, func() bool {
		return capture.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSenderGateShortCircuits(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	// A cold gate with no reachable config endpoint blocks everything.
	gate := NewGate("http://127.0.0.1:1", WithPollInterval(time.Hour))
	defer gate.Close()

	sender := NewSender(server.URL, WithGate(gate), WithFlushInterval(10*time.Millisecond))
	defer sender.Close()

	assert.False(t, sender.Send(NewEntry("svc-a", "corr-1", "->", "op", "/api", nil)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, capture.count())
}

func TestSenderCloseFlushesQueue(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	sender := NewSender(server.URL, WithBatchSize(100), WithFlushInterval(time.Hour))

	for i := 0; i < 5; i++ {
		require.True(t, sender.Send(NewEntry("svc-a", "corr-1", "->", "op", "/api", nil)))
	}

	sender.Close()

	assert.Equal(t, 5, capture.count())
	assert.False(t, sender.Send(NewEntry("svc-a", "corr-1", "->", "op", "/api", nil)), "send after close")
}

func TestSenderFlushWaitsForDrain(t *testing.T) {
	capture := &captureServer{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	sender := NewSender(server.URL, WithBatchSize(2), WithFlushInterval(10*time.Millisecond))
	defer sender.Close()

	for i := 0; i < 4; i++ {
		require.True(t, sender.Send(NewEntry("svc-a", "corr-1", "->", "op", "/api", nil)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sender.Flush(ctx))

	require.Eventually(t, func() bool {
		return capture.count() == 4
	}, time.Second, 5*time.Millisecond)
}
