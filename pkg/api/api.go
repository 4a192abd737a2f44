// Package api implements TraceHub's HTTP surface: trace ingest with
// write-time dedup, trace query with adaptive promotion, the sampling
// config distribution endpoints, and operational introspection.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/environment"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// advisory delay handed to a client that just flipped a correlation
	// from COLD: one poll interval for gates to pick the change up, plus
	// a margin for event propagation
	propagationMargin = 15 * time.Second

	maxCorrelationIDLength = 256
)

type TraceHub struct {
	Env         environment.Env
	DbConn      db.DbConnector
	Store       *adaptive.Store
	Notifier    *notify.Notifier
	Browse      *db.BrowseCache
	Secret      string
	DedupWindow time.Duration
	Retention   time.Duration
	PollBase    time.Duration

	recentLimiter *rate.Limiter
	startedAt     time.Time
	counters      counters
	sources       *sourceTracker
}

func NewTraceHub(env environment.Env, dbConn db.DbConnector, store *adaptive.Store, notifier *notify.Notifier, browse *db.BrowseCache, secret string, dedupWindow, retention, pollBase time.Duration) *TraceHub {
	return &TraceHub{
		Env:         env,
		DbConn:      dbConn,
		Store:       store,
		Notifier:    notifier,
		Browse:      browse,
		Secret:      secret,
		DedupWindow: dedupWindow,
		Retention:   retention,
		PollBase:    pollBase,

		// browse endpoints are for humans: 30 requests per minute
		recentLimiter: rate.NewLimiter(rate.Every(2*time.Second), 30),
		startedAt:     time.Now(),
		sources:       newSourceTracker(),
	}
}

func (th *TraceHub) Routes(router chi.Router) {
	router.Get("/tracing/config", th.tracingConfig)
	router.Get("/tracing/status", th.tracingStatus)
	router.Post("/tracing/enable/{correlationID}", th.tracingEnable)
	router.Post("/tracing/disable/{correlationID}", th.tracingDisable)

	router.Post("/ingest", th.ingestBatch)
	router.Post("/ingest/single", th.ingestSingle)

	router.Get("/traces/{correlationID}", th.getTraces)
	router.Get("/traces/{correlationID}/stream", th.streamTraces)
	router.Get("/correlations", th.listCorrelations)
	router.Get("/recent", th.recentTraces)

	router.Get("/stats", th.getStats)
	router.Get("/stats/sources", th.getSourceStats)
	router.Get("/health", th.health)
	router.Delete("/cleanup", th.forceCleanup)
}

func (th *TraceHub) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"service":         "tracehub",
		"environment":     th.Env.String(),
		"retention_hours": int(th.Retention.Hours()),
	})
}

func validCorrelationID(correlationID string) bool {
	if correlationID == "" || correlationID == "-" || len(correlationID) > maxCorrelationIDLength {
		return false
	}
	for _, r := range correlationID {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		logger.Error(r.Context(), message, zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": message})
}
