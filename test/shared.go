package test

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/muid-io/tracehub/internal/db"
	util "github.com/muid-io/tracehub/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTrace(sourceID, correlationID, endpoint, direction string) *db.Trace {
	return &db.Trace{
		SourceID:      sourceID,
		CorrelationID: correlationID,
		Timestamp:     float64(time.Now().UnixMilli()),
		Suffix:        uuid.NewString()[:8],
		Direction:     direction,
		Operation:     fmt.Sprintf("%s %s", direction, endpoint),
		Endpoint:      endpoint,
		Data:          map[string]any{"status": 200},
		Hostname:      "test-host",
	}
}

func writeTrace(tc util.TestCtx, trace *db.Trace, window time.Duration) db.InsertResult {
	tx, closer, err := tc.Connector().Connect(tc.Context())
	require.NoError(tc.T(), err, "connect for insert")
	defer closer(tc.Context())

	result, err := db.InsertTrace(tc.Context(), tx, trace, window)
	require.NoError(tc.T(), err, "insert trace")
	require.NoError(tc.T(), tx.Commit(tc.Context()), "commit insert")

	return result
}

func readChain(tc util.TestCtx, correlationID string) []*db.Trace {
	tx := tc.Connect()

	traces, err := db.QueryTraces(tc.Context(), tx, correlationID, "")
	require.NoError(tc.T(), err, "query traces")

	return traces
}
