package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
)

const sourceWindow = 5 * time.Minute

// sourceTracker keeps a sliding window of ingest timestamps per source id,
// to surface which emitters dominate the traffic.
type sourceTracker struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	totals  map[string]int64
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{
		windows: make(map[string][]time.Time),
		totals:  make(map[string]int64),
	}
}

func (st *sourceTracker) Track(sourceID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.windows[sourceID] = append(st.windows[sourceID], time.Now())
	st.totals[sourceID]++
}

// Sweep trims window entries older than the tracking window.
func (st *sourceTracker) Sweep() {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := time.Now().Add(-sourceWindow)
	for sourceID, window := range st.windows {
		kept := window[:0]
		for _, ts := range window {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(st.windows, sourceID)
			continue
		}
		st.windows[sourceID] = kept
	}
}

type sourceRate struct {
	SourceID string `json:"source_id"`
	Total    int64  `json:"total"`
	RPM      int    `json:"rpm"`
	RP5M     int    `json:"rp5m"`
}

func (st *sourceTracker) rates() []sourceRate {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	rates := []sourceRate{}

	for sourceID, total := range st.totals {
		window := st.windows[sourceID]

		var rpm, rp5m int
		for _, ts := range window {
			if now.Sub(ts) < sourceWindow {
				rp5m++
				if now.Sub(ts) < time.Minute {
					rpm++
				}
			}
		}

		rates = append(rates, sourceRate{SourceID: sourceID, Total: total, RPM: rpm, RP5M: rp5m})
	}

	// highest emitters first
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].RPM != rates[j].RPM {
			return rates[i].RPM > rates[j].RPM
		}
		return rates[i].SourceID < rates[j].SourceID
	})

	return rates
}

func (th *TraceHub) getStats(w http.ResponseWriter, r *http.Request) {
	correlations, queues := th.Notifier.SubscriberCounts()

	rates := th.sources.rates()
	if len(rates) > 5 {
		rates = rates[:5]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(th.startedAt).Seconds()),
		"subscribers": map[string]int{
			"active_correlations": correlations,
			"total_queues":        queues,
		},
		"requests": map[string]int64{
			"ingest_total":      th.counters.ingestTotal.Load(),
			"ingest_deduped":    th.counters.ingestDeduped.Load(),
			"ingest_duplicates": th.counters.ingestDuplicates.Load(),
			"queries_total":     th.counters.queriesTotal.Load(),
			"recent_requests":   th.counters.recentRequests.Load(),
		},
		"sampling": map[string]interface{}{
			"version":     th.Store.Version(),
			"tracked":     len(th.Store.Status()),
			"hot_ttl":     int(th.Store.Params().HotTTL.Seconds()),
			"warm_ttl":    int(th.Store.Params().WarmTTL.Seconds()),
			"warm_rate":   th.Store.Params().WarmRate,
			"cold_rate":   th.Store.Params().ColdRate,
			"tick_period": int(th.Store.Params().Tick.Seconds()),
		},
		"database": map[string]interface{}{
			"retention_hours": int(th.Retention.Hours()),
		},
		"top_sources": rates,
	})
}

func (th *TraceHub) getSourceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":        th.sources.rates(),
		"window_seconds": int(sourceWindow.Seconds()),
	})
}

// forceCleanup deletes traces past the retention cutoff on demand; the
// same work also runs on the hourly schedule.
func (th *TraceHub) forceCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := th.Cleanup(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not clean up traces", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": removed})
}

// Cleanup removes traces older than the retention period.
func (th *TraceHub) Cleanup(ctx context.Context) (int64, error) {
	tx, close, err := th.DbConn.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer close(ctx)

	removed, err := db.CleanupBefore(ctx, tx, time.Now().Add(-th.Retention))
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	if removed > 0 {
		logger.Info(ctx, "cleaned up old traces", key.Removed.Field(removed), key.Retention.Field(th.Retention))
	}

	return removed, nil
}

// SweepWindows trims the source-rate tracking windows; wired to the
// minutely maintenance schedule.
func (th *TraceHub) SweepWindows() {
	th.sources.Sweep()
}
