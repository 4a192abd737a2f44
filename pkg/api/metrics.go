package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracehub",
		Name:      "ingest_traces_total",
		Help:      "Ingested traces by outcome (inserted, merged, duplicate).",
	}, []string{"result"})

	queries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracehub",
		Name:      "trace_queries_total",
		Help:      "Correlation trace queries served.",
	})

	promotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracehub",
		Name:      "promotions_total",
		Help:      "Promotions to HOT by previous tier.",
	}, []string{"previous"})

	configRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracehub",
		Name:      "config_requests_total",
		Help:      "Sampling config fetches by response kind (full, revalidated).",
	}, []string{"kind"})
)
