package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
)

// tracingConfig serves the adaptive sampling snapshot to remote gates.
// Pure in-memory: response time is bounded by the hot-set size, never by
// durable-storage load. Supports ETag revalidation so the steady state is
// a cheap 304 per poll.
func (th *TraceHub) tracingConfig(w http.ResponseWriter, r *http.Request) {
	snapshot, encoded, err := th.Store.Snapshot()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not build config snapshot", err)
		return
	}

	etag := snapshot.ETag()
	w.Header().Set("ETag", etag)

	if match := r.Header.Get("If-None-Match"); match != "" {
		if strings.TrimSpace(match) == etag {
			configRequests.WithLabelValues("revalidated").Inc()
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	configRequests.WithLabelValues("full").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

func (th *TraceHub) tracingStatus(w http.ResponseWriter, r *http.Request) {
	status := th.Store.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlations": status,
		"count":        len(status),
	})
}

func (th *TraceHub) tracingEnable(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if !validCorrelationID(correlationID) {
		writeError(w, r, http.StatusBadRequest, "invalid correlation id", nil)
		return
	}

	previous := th.Store.Promote(correlationID)
	promotions.WithLabelValues(previous.String()).Inc()

	logger.Info(r.Context(), "tracing enabled",
		key.CorrelationID.Field(correlationID),
		key.State.Field(previous.String()))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlation_id": correlationID,
		"state":          "hot",
		"previous_state": previous.String(),
		"ttl":            int(th.Store.Params().HotTTL.Seconds()),
	})
}

func (th *TraceHub) tracingDisable(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if !validCorrelationID(correlationID) {
		writeError(w, r, http.StatusBadRequest, "invalid correlation id", nil)
		return
	}

	previous := th.Store.Disable(correlationID)

	logger.Info(r.Context(), "tracing disabled",
		key.CorrelationID.Field(correlationID),
		key.State.Field(previous.String()))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlation_id": correlationID,
		"state":          "cold",
		"previous_state": previous.String(),
	})
}

// advisory is attached to a trace-query response when the query itself
// flipped the correlation from COLD to HOT: the traces returned so far
// were recorded at minimal fidelity, and full recording only reaches the
// store after the gates' next poll.
type advisory struct {
	PreviousState     string `json:"previous_state"`
	CurrentState      string `json:"current_state"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

func (th *TraceHub) newAdvisory() *advisory {
	return &advisory{
		PreviousState:     "cold",
		CurrentState:      "hot",
		Message:           "Tracing activated. Previous traces may be incomplete (COLD mode). Full recording started.",
		RetryAfterSeconds: int((th.PollBase + propagationMargin).Seconds()),
	}
}
