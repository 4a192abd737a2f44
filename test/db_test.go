package test

import (
	"testing"
	"time"

	"github.com/muid-io/tracehub/internal/db"
	util "github.com/muid-io/tracehub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 300 * time.Second

func TestInsertAndQueryChain(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	request := newTrace("svc-a", "corr-1", "/api/orders", "->")
	result := writeTrace(tc, request, window)
	assert.Equal(t, db.Inserted, result, "first observation inserts")

	response := newTrace("svc-a", "corr-1", "/api/orders", "<-")
	response.Timestamp = request.Timestamp + 500
	result = writeTrace(tc, response, window)
	assert.Equal(t, db.Inserted, result, "response direction is a distinct identity")

	traces := readChain(tc, "corr-1")
	require.Len(t, traces, 2)
	assert.Equal(t, "->", traces[0].Direction)
	assert.Equal(t, "<-", traces[1].Direction)
}

func TestDedupMergesWithinWindow(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	first := newTrace("svc-a", "corr-2", "/api/orders", "->")
	first.Data = map[string]any{"attempt": 1}
	result := writeTrace(tc, first, window)
	assert.Equal(t, db.Inserted, result)

	second := newTrace("svc-a", "corr-2", "/api/orders", "->")
	second.Timestamp = first.Timestamp + 1000
	second.Data = map[string]any{"attempt": 2}
	result = writeTrace(tc, second, window)
	assert.Equal(t, db.Merged, result, "same identity within window merges")

	traces := readChain(tc, "corr-2")
	require.Len(t, traces, 1, "merge must not create a second row")
	assert.Equal(t, second.Timestamp, traces[0].Timestamp, "merge refreshes the timestamp")
	assert.Equal(t, float64(1), traces[0].Data["attempt"], "merge keeps the first payload")
}

func TestDedupIdentityIsFourFields(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	result := writeTrace(tc, newTrace("svc-a", "corr-3", "/api/orders", "->"), window)
	assert.Equal(t, db.Inserted, result)

	// Any changed identity field makes a new row.
	result = writeTrace(tc, newTrace("svc-b", "corr-3", "/api/orders", "->"), window)
	assert.Equal(t, db.Inserted, result, "different source")

	result = writeTrace(tc, newTrace("svc-a", "corr-3", "/api/refunds", "->"), window)
	assert.Equal(t, db.Inserted, result, "different endpoint")

	result = writeTrace(tc, newTrace("svc-a", "corr-4", "/api/orders", "->"), window)
	assert.Equal(t, db.Inserted, result, "different correlation")

	assert.Len(t, readChain(tc, "corr-3"), 3)
}

func TestExactDuplicateIsDropped(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	trace := newTrace("svc-a", "corr-5", "/api/orders", "->")
	result := writeTrace(tc, trace, window)
	assert.Equal(t, db.Inserted, result)

	// A zero dedup window disables merging, so the retransmit falls
	// through to the insert and hits the uniqueness constraint.
	retransmit := *trace
	result = writeTrace(tc, &retransmit, 0)
	assert.Equal(t, db.Duplicate, result)

	assert.Len(t, readChain(tc, "corr-5"), 1)
}

func TestQueryTracesSourceFilter(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	writeTrace(tc, newTrace("svc-a", "corr-6", "/api/orders", "->"), window)
	writeTrace(tc, newTrace("svc-b", "corr-6", "/api/orders", "->"), window)

	tx := tc.Connect()
	traces, err := db.QueryTraces(tc.Context(), tx, "corr-6", "svc-b")
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "svc-b", traces[0].SourceID)
}

func TestRecentTracesSkipsUncorrelated(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	writeTrace(tc, newTrace("svc-a", "corr-7", "/api/orders", "->"), window)
	writeTrace(tc, newTrace("svc-a", "-", "/health", "->"), window)

	tx := tc.Connect()
	traces, err := db.RecentTraces(tc.Context(), tx, 10, 0, "")
	require.NoError(t, err)

	for _, trace := range traces {
		assert.NotEqual(t, "-", trace.CorrelationID)
	}
}

func TestListCorrelationsSummaries(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	first := newTrace("svc-a", "corr-8", "/api/orders", "->")
	writeTrace(tc, first, window)

	last := newTrace("svc-b", "corr-8", "/api/orders", "<-")
	last.Timestamp = first.Timestamp + 2500
	writeTrace(tc, last, window)

	tx := tc.Connect()
	summaries, err := db.ListCorrelations(tc.Context(), tx, 10)
	require.NoError(t, err)

	var summary *db.CorrelationSummary
	for _, s := range summaries {
		if s.CorrelationID == "corr-8" {
			summary = s
		}
	}
	require.NotNil(t, summary, "corr-8 listed")
	assert.Equal(t, int64(2), summary.TraceCount)
	assert.Equal(t, int64(2500), summary.DurationMS)
	assert.ElementsMatch(t, []string{"svc-a", "svc-b"}, summary.Sources)
}

func TestCleanupBefore(t *testing.T) {
	tc := util.NewTestCtx(t)
	defer tc.Close()

	writeTrace(tc, newTrace("svc-a", "corr-9", "/api/orders", "->"), window)

	tx := tc.Connect()
	removed, err := db.CleanupBefore(tc.Context(), tx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = db.CleanupBefore(tc.Context(), tx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
