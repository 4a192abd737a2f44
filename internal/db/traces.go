package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Trace is one checkpoint event emitted by an instrumented service.
// Timestamp is the moment of occurrence in unix milliseconds; created_at
// (DB-side) is the moment of ingestion and anchors the dedup window.
type Trace struct {
	ID            int64          `json:"id,omitempty"`
	SourceID      string         `json:"source_id"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     float64        `json:"timestamp"`
	Suffix        string         `json:"suffix"`
	Direction     string         `json:"direction"`
	Operation     string         `json:"operation"`
	Endpoint      string         `json:"endpoint"`
	Data          map[string]any `json:"data,omitempty"`
	Hostname      string         `json:"hostname,omitempty"`
	RawLine       string         `json:"raw_line,omitempty"`
}

// DedupKey is the identity under which repeated observations of the same
// logical event are merged. It is only unique within the dedup window.
func (t *Trace) DedupKey() string {
	return strings.Join([]string{t.SourceID, t.CorrelationID, t.Endpoint, t.Direction}, "\x00")
}

type InsertResult int

const (
	Inserted InsertResult = iota
	// Merged means an existing record within the dedup window had its
	// timestamp refreshed; the original payload is untouched.
	Merged
	// Duplicate means the exact event identity already exists.
	Duplicate
)

func (r InsertResult) String() string {
	switch r {
	case Merged:
		return "merged"
	case Duplicate:
		return "duplicate"
	default:
		return "inserted"
	}
}

// InsertTrace writes one trace, collapsing polling-induced re-emissions.
//
// Atomicity per key comes from a transaction-scoped advisory lock on the
// dedup identity: two concurrent writers for the same key serialize, so
// they can never both pass the merge check and insert twice. The lock is
// keyed by a hash, never held across the network boundary, and released
// at commit.
func InsertTrace(ctx context.Context, tx pgx.Tx, trace *Trace, window time.Duration) (InsertResult, error) {
	_, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
	`, trace.DedupKey())
	if err != nil {
		return 0, fmt.Errorf("lock dedup key for %v: %w", trace.CorrelationID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE th.traces
		SET timestamp = $1, created_at = now()
		WHERE source_id = $2
		  AND correlation_id = $3
		  AND endpoint = $4
		  AND direction = $5
		  AND created_at > now() - $6::interval
	`, trace.Timestamp, trace.SourceID, trace.CorrelationID, trace.Endpoint, trace.Direction, window)
	if err != nil {
		return 0, fmt.Errorf("merge trace for %v: %w", trace.CorrelationID, err)
	}

	if tag.RowsAffected() > 0 {
		return Merged, nil
	}

	tag, err = tx.Exec(ctx, `
		INSERT INTO th.traces
			(source_id, correlation_id, timestamp, suffix, direction, operation, endpoint, data, hostname, raw_line)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (correlation_id, timestamp, suffix) DO NOTHING
	`, trace.SourceID, trace.CorrelationID, trace.Timestamp, trace.Suffix, trace.Direction,
		trace.Operation, trace.Endpoint, trace.Data, trace.Hostname, nullable(trace.RawLine))
	if err != nil {
		return 0, fmt.Errorf("insert trace for %v: %w", trace.CorrelationID, err)
	}

	if tag.RowsAffected() == 0 {
		return Duplicate, nil
	}

	return Inserted, nil
}

// QueryTraces returns all traces for a correlation id ordered by timestamp,
// optionally filtered by source id.
func QueryTraces(ctx context.Context, tx pgx.Tx, correlationID, sourceID string) ([]*Trace, error) {
	query := `
		SELECT id, source_id, correlation_id, timestamp, suffix, direction, operation, endpoint, data, hostname, COALESCE(raw_line, '')
		FROM th.traces
		WHERE correlation_id = $1
	`
	args := []interface{}{correlationID}

	if sourceID != "" {
		query += ` AND source_id = $2`
		args = append(args, sourceID)
	}

	query += ` ORDER BY timestamp ASC`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces for %v: %w", correlationID, err)
	}

	return scanTraces(rows)
}

// RecentTraces returns the newest traces across all correlations, oldest
// first, optionally filtered by source id prefix or a minimum id.
func RecentTraces(ctx context.Context, tx pgx.Tx, limit int, sinceID int64, sourcePrefix string) ([]*Trace, error) {
	conditions := []string{`correlation_id != '-'`}
	args := []interface{}{}

	if sinceID > 0 {
		args = append(args, sinceID)
		conditions = append(conditions, fmt.Sprintf("id > $%d", len(args)))
	}

	if sourcePrefix != "" {
		args = append(args, sourcePrefix+"%")
		conditions = append(conditions, fmt.Sprintf("source_id LIKE $%d", len(args)))
	}

	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, source_id, correlation_id, timestamp, suffix, direction, operation, endpoint, data, hostname, COALESCE(raw_line, '')
		FROM th.traces
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent traces: %w", err)
	}

	traces, err := scanTraces(rows)
	if err != nil {
		return nil, err
	}

	// oldest first
	for i, j := 0, len(traces)-1; i < j; i, j = i+1, j-1 {
		traces[i], traces[j] = traces[j], traces[i]
	}

	return traces, nil
}

type CorrelationSummary struct {
	CorrelationID string   `json:"correlation_id"`
	TraceCount    int64    `json:"trace_count"`
	FirstTS       float64  `json:"first_ts"`
	LastTS        float64  `json:"last_ts"`
	DurationMS    int64    `json:"duration_ms"`
	Sources       []string `json:"sources"`
}

// ListCorrelations returns the most recently active correlation ids with
// per-chain summary info, for browsing.
func ListCorrelations(ctx context.Context, tx pgx.Tx, limit int) ([]*CorrelationSummary, error) {
	rows, err := tx.Query(ctx, `
		SELECT correlation_id,
		       COUNT(*) AS trace_count,
		       MIN(timestamp) AS first_ts,
		       MAX(timestamp) AS last_ts,
		       ARRAY_AGG(DISTINCT source_id) AS sources
		FROM th.traces
		WHERE correlation_id != '-'
		GROUP BY correlation_id
		ORDER BY MAX(created_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}

	summaries := []*CorrelationSummary{}

	for rows.Next() {
		summary := &CorrelationSummary{}
		err = rows.Scan(&summary.CorrelationID, &summary.TraceCount, &summary.FirstTS, &summary.LastTS, &summary.Sources)
		if err != nil {
			return nil, fmt.Errorf("scan correlation summary: %w", err)
		}
		summary.DurationMS = int64(summary.LastTS - summary.FirstTS)
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// CleanupBefore removes traces older than the retention cutoff and returns
// how many rows were deleted.
func CleanupBefore(ctx context.Context, tx pgx.Tx, cutoff time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM th.traces
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup traces before %v: %w", cutoff, err)
	}

	return tag.RowsAffected(), nil
}

func scanTraces(rows pgx.Rows) ([]*Trace, error) {
	traces := []*Trace{}

	for rows.Next() {
		trace := &Trace{}
		err := rows.Scan(
			&trace.ID, &trace.SourceID, &trace.CorrelationID, &trace.Timestamp, &trace.Suffix,
			&trace.Direction, &trace.Operation, &trace.Endpoint, &trace.Data, &trace.Hostname, &trace.RawLine,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces = append(traces, trace)
	}

	return traces, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
