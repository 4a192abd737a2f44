package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
)

// secretHeader authenticates ingest requests when a shared secret is
// configured. Query endpoints stay public.
const secretHeader = "X-TraceHub-Secret"

type counters struct {
	ingestTotal      atomic.Int64
	ingestDeduped    atomic.Int64
	ingestDuplicates atomic.Int64
	queriesTotal     atomic.Int64
	recentRequests   atomic.Int64
}

type ingestRequest struct {
	Traces []*db.Trace `json:"traces"`
}

func (th *TraceHub) authorized(r *http.Request) bool {
	if th.Secret == "" {
		return true
	}
	provided := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(th.Secret)) == 1
}

// ingestBatch accepts a batch of checkpoint traces. Gating is strictly
// client-side: whatever arrives here is accepted, so pre-gate clients keep
// working unchanged.
func (th *TraceHub) ingestBatch(w http.ResponseWriter, r *http.Request) {
	if !th.authorized(r) {
		writeError(w, r, http.StatusUnauthorized, "missing or invalid "+secretHeader+" header", nil)
		return
	}

	var request ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed ingest payload", err)
		return
	}

	var inserted, merged, duplicates int
	for _, trace := range request.Traces {
		result, err := th.insertTrace(r, trace)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "could not store trace", err)
			return
		}

		switch result {
		case db.Inserted:
			inserted++
		case db.Merged:
			merged++
		case db.Duplicate:
			duplicates++
		}

		th.sources.Track(trace.SourceID)
	}

	th.counters.ingestTotal.Add(int64(inserted))
	th.counters.ingestDeduped.Add(int64(merged))
	th.counters.ingestDuplicates.Add(int64(duplicates))

	logger.Debug(r.Context(), "ingested batch",
		key.Accepted.Field(len(request.Traces)),
		key.Inserted.Field(inserted),
		key.Deduped.Field(merged),
		key.Duplicates.Field(duplicates))

	writeJSON(w, http.StatusOK, map[string]int{
		"accepted":   len(request.Traces),
		"inserted":   inserted,
		"deduped":    merged,
		"duplicates": duplicates,
	})
}

func (th *TraceHub) ingestSingle(w http.ResponseWriter, r *http.Request) {
	if !th.authorized(r) {
		writeError(w, r, http.StatusUnauthorized, "missing or invalid "+secretHeader+" header", nil)
		return
	}

	var trace db.Trace
	if err := json.NewDecoder(r.Body).Decode(&trace); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed trace payload", err)
		return
	}

	result, err := th.insertTrace(r, &trace)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not store trace", err)
		return
	}

	switch result {
	case db.Inserted:
		th.counters.ingestTotal.Add(1)
	case db.Merged:
		th.counters.ingestDeduped.Add(1)
	case db.Duplicate:
		th.counters.ingestDuplicates.Add(1)
	}
	th.sources.Track(trace.SourceID)

	writeJSON(w, http.StatusOK, map[string]bool{"inserted": result == db.Inserted})
}

func (th *TraceHub) insertTrace(r *http.Request, trace *db.Trace) (db.InsertResult, error) {
	ctx := r.Context()

	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer close(ctx)

	result, err := db.InsertTrace(ctx, tx, trace, th.DedupWindow)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	ingestResults.WithLabelValues(result.String()).Inc()

	if result == db.Inserted {
		th.Notifier.Publish(trace)
	}

	return result, nil
}
