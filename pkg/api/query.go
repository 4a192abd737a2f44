package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
)

type queryResponse struct {
	CorrelationID string      `json:"correlation_id"`
	Traces        []*db.Trace `json:"traces"`
	Count         int         `json:"count"`
	Complete      bool        `json:"complete"`
	AdaptiveHint  *advisory   `json:"adaptive_hint,omitempty"`
}

// getTraces returns the full chain for a correlation id, ordered by
// timestamp. As a side effect the id is promoted to HOT: a human asking
// for a specific correlation is the signal the adaptive sampler exists
// for. Browsing endpoints never promote.
func (th *TraceHub) getTraces(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if !validCorrelationID(correlationID) {
		writeError(w, r, http.StatusBadRequest, "invalid correlation id", nil)
		return
	}

	previous := th.Store.Promote(correlationID)
	promotions.WithLabelValues(previous.String()).Inc()
	queries.Inc()
	th.counters.queriesTotal.Add(1)

	ctx := r.Context()
	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not connect to storage", err)
		return
	}
	defer close(ctx)

	traces, err := db.QueryTraces(ctx, tx, correlationID, r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not query traces", err)
		return
	}

	var entries, exits int
	for _, trace := range traces {
		switch trace.Direction {
		case "->":
			entries++
		case "<-":
			exits++
		}
	}

	response := queryResponse{
		CorrelationID: correlationID,
		Traces:        traces,
		Count:         len(traces),
		Complete:      entries > 0 && entries == exits,
	}
	if previous == adaptive.Cold {
		response.AdaptiveHint = th.newAdvisory()
	}

	logger.Info(ctx, "trace query",
		key.CorrelationID.Field(correlationID),
		key.Count.Field(len(traces)),
		key.State.Field(previous.String()))

	writeJSON(w, http.StatusOK, response)
}

// streamTraces replays the existing chain and then follows new arrivals as
// server-sent events until the timeout elapses. Watching a stream does not
// promote: only a direct trace query does.
func (th *TraceHub) streamTraces(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if !validCorrelationID(correlationID) {
		writeError(w, r, http.StatusBadRequest, "invalid correlation id", nil)
		return
	}

	timeout := 60 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid timeout", nil)
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	ctx := r.Context()
	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not connect to storage", err)
		return
	}

	existing, err := db.QueryTraces(ctx, tx, correlationID, "")
	close(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not query traces", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, trace := range existing {
		writeEvent(w, trace)
	}
	flusher.Flush()

	queue, unsubscribe := th.Notifier.Subscribe(correlationID)
	defer unsubscribe()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	keepalive := time.NewTicker(time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			fmt.Fprint(w, "data: {\"type\": \"timeout\"}\n\n")
			flusher.Flush()
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case trace, open := <-queue:
			if !open {
				return
			}
			writeEvent(w, trace)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, trace *db.Trace) {
	encoded, err := json.Marshal(trace)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", encoded)
}

func (th *TraceHub) listCorrelations(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)

	cacheKey := fmt.Sprintf("correlations:%d", limit)
	if cached, found := th.Browse.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx := r.Context()
	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not connect to storage", err)
		return
	}
	defer close(ctx)

	summaries, err := db.ListCorrelations(ctx, tx, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not list correlations", err)
		return
	}

	response := map[string]interface{}{
		"correlations": summaries,
		"count":        len(summaries),
	}
	th.Browse.Set(cacheKey, response)

	writeJSON(w, http.StatusOK, response)
}

func (th *TraceHub) recentTraces(w http.ResponseWriter, r *http.Request) {
	th.counters.recentRequests.Add(1)

	if !th.recentLimiter.Allow() {
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded: max 30 requests/minute", nil)
		return
	}

	limit := queryLimit(r, 200, 1000)

	var sinceID int64
	if raw := r.URL.Query().Get("since_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid since_id", nil)
			return
		}
		sinceID = parsed
	}

	sourcePrefix := r.URL.Query().Get("source")

	cacheKey := fmt.Sprintf("recent:%d:%d:%s", limit, sinceID, sourcePrefix)
	if cached, found := th.Browse.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx := r.Context()
	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not connect to storage", err)
		return
	}
	defer close(ctx)

	traces, err := db.RecentTraces(ctx, tx, limit, sinceID, sourcePrefix)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not query recent traces", err)
		return
	}

	response := map[string]interface{}{
		"traces": traces,
		"count":  len(traces),
	}
	th.Browse.Set(cacheKey, response)

	writeJSON(w, http.StatusOK, response)
}

func queryLimit(r *http.Request, fallback, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
