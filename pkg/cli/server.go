package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/environment"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/internal/notify"
	"github.com/muid-io/tracehub/internal/telemetry"
	"github.com/muid-io/tracehub/pkg/api"
	"github.com/muid-io/tracehub/pkg/server"
	"github.com/muid-io/tracehub/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewServerCommand() *cobra.Command {
	var shutdownTelemetry func()

	var (
		encoding    string
		tracing     bool
		port        int
		dbUri       string
		secret      string
		hotTTL      time.Duration
		warmTTL     time.Duration
		warmRate    float64
		defaultRate float64
		tick        time.Duration
		dedupWindow time.Duration
		retention   time.Duration
		pollBase    time.Duration
	)

	cmd := &cobra.Command{
		Use:               "server",
		Short:             "TraceHub server",
		DisableAutoGenTag: true,
		Version:           version.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true // silence usage when an error occurs after flags have been parsed

			env, err := environment.LoadEnvironment()
			if err != nil {
				return fmt.Errorf("could not load environment: %w", err)
			}

			var config zap.Config
			if env == environment.Prod {
				config = zap.NewProductionConfig()
			} else {
				config = zap.NewDevelopmentConfig()
			}

			config.Encoding = encoding
			config.Level = zap.NewAtomicLevelAt(*logLevel)
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

			err = logger.Init(config)
			if err != nil {
				return fmt.Errorf("could not initialize logger: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if tracing {
				shutdownTelemetry, err = telemetry.Init(ctx, telemetry.Server)
				if err != nil {
					return fmt.Errorf("could not initialize telemetry: %w", err)
				}
			}

			if secret == "" {
				logger.Warn(ctx, "no ingest secret configured, ingest endpoints are open")
			}

			dbConn, err := server.NewDbPoolConnector(ctx, dbUri)
			if err != nil {
				return fmt.Errorf("cannot connect to DB %s: %w", dbUri, err)
			}
			defer dbConn.Close()

			err = dbConn.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("cannot migrate DB: %w", err)
			}

			browse, err := db.NewBrowseCache(2 * time.Second)
			if err != nil {
				return fmt.Errorf("cannot setup browse cache: %w", err)
			}

			store := adaptive.NewStore(adaptive.Params{
				HotTTL:   hotTTL,
				WarmTTL:  warmTTL,
				WarmRate: warmRate,
				ColdRate: defaultRate,
				Tick:     tick,
			}, clock.New())

			hub := api.NewTraceHub(env, dbConn, store, notify.NewNotifier(), browse, secret, dedupWindow, retention, pollBase)
			s := server.NewServer(hub, store, port)

			osSignals := make(chan os.Signal, 1)
			signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-osSignals
				cancel()
			}()

			logger.Info(ctx, "start tracehub server",
				key.Port.Field(port),
				key.Environment.Field(env.String()),
				key.HotTTL.Field(hotTTL),
				key.WarmTTL.Field(warmTTL),
				key.DedupWindow.Field(dedupWindow),
				key.Retention.Field(retention),
			)
			return s.Run(ctx)
		},
		PostRunE: func(cmd *cobra.Command, _ []string) error {
			if shutdownTelemetry != nil {
				shutdownTelemetry()
			}

			return nil
		},
	}

	flags := cmd.PersistentFlags()

	flags.AddGoFlag(flag.CommandLine.Lookup("log-level"))
	flags.StringVar(&encoding, "log-encoding", "console", "Log encoding (console | json)")
	flags.BoolVar(&tracing, "tracing", false, "Whether tracing is enabled")

	// every tunable falls back to a TRACEHUB_* env variable
	flags.IntVar(&port, "port", envInt("TRACEHUB_PORT", 8099), "HTTP server port")
	flags.StringVar(&dbUri, "dburi", envString("TRACEHUB_DB_URI", "postgres://postgres@127.0.0.1:5432/tracehub"), "Postgres URI")
	flags.StringVar(&secret, "secret", envString("TRACEHUB_SECRET", ""), "Ingest shared secret")
	flags.DurationVar(&hotTTL, "hot-ttl", envDuration("TRACEHUB_HOT_TTL", 300*time.Second), "How long a queried correlation records everything")
	flags.DurationVar(&warmTTL, "warm-ttl", envDuration("TRACEHUB_WARM_TTL", 1500*time.Second), "How long an expired correlation keeps sampling")
	flags.Float64Var(&warmRate, "warm-rate", envFloat("TRACEHUB_WARM_RATE", 0.1), "Sampling rate for recently hot correlations")
	flags.Float64Var(&defaultRate, "default-rate", envFloat("TRACEHUB_DEFAULT_RATE", 0.0), "Baseline sampling rate for unknown correlations")
	flags.DurationVar(&tick, "tick", envDuration("TRACEHUB_TICK", 10*time.Second), "Cooldown sweep interval")
	flags.DurationVar(&dedupWindow, "dedup-window", envDuration("TRACEHUB_DEDUP_WINDOW", 300*time.Second), "Ingest deduplication window")
	flags.DurationVar(&retention, "retention", envDuration("TRACEHUB_RETENTION", 24*time.Hour), "How long traces are kept")
	flags.DurationVar(&pollBase, "poll-base", envDuration("TRACEHUB_POLL_BASE", 30*time.Second), "Client config poll interval advertised in advisories")

	return cmd
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if value := os.Getenv(name); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if value := os.Getenv(name); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if value := os.Getenv(name); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func ServerExecute() {
	ctx := context.Background()
	cmd := NewServerCommand()

	err := cmd.ExecuteContext(ctx)

	logger.Info(ctx, "shut down server")
	_ = logger.Sync()

	if err != nil {
		logger.Fatal(ctx, "server failed", zap.Error(err))
	}
}
