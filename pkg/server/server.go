package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/internal/telemetry"
	"github.com/muid-io/tracehub/pkg/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type DbPoolConnector struct {
	pool *pgxpool.Pool
}

func NewDbPoolConnector(ctx context.Context, uri string) (*DbPoolConnector, error) {
	config, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Tracer = telemetry.NewQueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &DbPoolConnector{pool: pool}, nil
}

func (d *DbPoolConnector) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *DbPoolConnector) Close() {
	d.pool.Close()
}

func (d *DbPoolConnector) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return d.pool.Exec(ctx, sql, args...)
}

func (d *DbPoolConnector) Connect(ctx context.Context) (pgx.Tx, db.CloseFunc, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, nil, err
	}

	return tx, func(ctx context.Context) {
		_ = tx.Rollback(ctx)
		conn.Release()
	}, nil
}

// Migrate brings the traces schema up to date.
func (d *DbPoolConnector) Migrate(ctx context.Context) error {
	tx, close, err := d.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer close(ctx)

	if err = db.Migrate(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type Server struct {
	Hub       *api.TraceHub
	Scheduler *adaptive.Scheduler
	http      *http.Server
	cron      *cron.Cron
}

func NewServer(hub *api.TraceHub, store *adaptive.Store, port int) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware)
	router.Use(middleware.Recoverer)

	hub.Routes(router)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &Server{
		Hub:       hub,
		Scheduler: adaptive.NewScheduler(store),
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			IdleTimeout:  120 * time.Second,
			WriteTimeout: 0, // SSE streams stay open past any fixed deadline
		},
		cron: cron.New(),
	}
}

// Run serves HTTP and drives the background work: the cooldown scheduler
// tick, the hourly retention cleanup and the minutely registry sweeps. It
// blocks until ctx is cancelled, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc("@hourly", func() {
		if _, err := s.Hub.Cleanup(ctx); err != nil {
			logger.Error(ctx, "retention cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention cleanup: %w", err)
	}

	_, err = s.cron.AddFunc("@every 1m", func() {
		s.Hub.Notifier.Sweep(5 * time.Minute)
		s.Hub.SweepWindows()
	})
	if err != nil {
		return fmt.Errorf("schedule registry sweep: %w", err)
	}

	s.cron.Start()
	defer s.cron.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.Scheduler.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		err := s.http.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.http.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
