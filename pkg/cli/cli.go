package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/internal/telemetry"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/muid-io/tracehub/pkg/version"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	shutdownTelemetry func()
	span              trace.Span

	// registered once on the global flag set; shared by both commands
	logLevel = zap.LevelFlag("log-level", zap.DebugLevel, "Log level")
)

func NewClientCommand() *cobra.Command {
	var (
		encoding    string
		tracing     bool
		otelContext string
		server      string
	)

	cmd := &cobra.Command{
		Use:               "client",
		Short:             "TraceHub client",
		DisableAutoGenTag: true,
		Version:           version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true // silence usage when an error occurs after flags have been parsed

			config := zap.NewProductionConfig()
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			config.Level = zap.NewAtomicLevelAt(*logLevel)
			config.Encoding = encoding

			err := logger.Init(config)
			if err != nil {
				return fmt.Errorf("could not initialize logger: %w", err)
			}

			ctx := cmd.Context()

			if tracing {
				shutdownTelemetry, err = telemetry.Init(ctx, telemetry.Client)
				if err != nil {
					return fmt.Errorf("could not initialize telemetry: %w", err)
				}
			}

			if otelContext != "" {
				var mapCarrier propagation.MapCarrier
				err := json.NewDecoder(strings.NewReader(otelContext)).Decode(&mapCarrier)
				if err != nil {
					return fmt.Errorf("failed to decode otel-context: %w", err)
				}

				ctx = otel.GetTextMapPropagator().Extract(ctx, mapCarrier)
			}

			ctx, span = telemetry.Start(ctx, "cmd.main")

			if server == "" {
				server = os.Getenv("TRACEHUB_SERVER")
			}
			if server == "" {
				server = "http://localhost:8099"
			}

			ctx = client.IntoContext(ctx, client.NewQueryClient(server))

			cmd.SetContext(ctx)

			return nil
		},
	}

	flags := cmd.PersistentFlags()

	flags.AddGoFlag(flag.CommandLine.Lookup("log-level"))
	flags.StringVar(&encoding, "log-encoding", "console", "Log encoding (console | json)")
	flags.BoolVar(&tracing, "tracing", false, "Whether tracing is enabled")
	flags.StringVar(&otelContext, "otel-context", "", "Open Telemetry context")
	flags.StringVar(&server, "server", "", "Server HTTP address (falls back to TRACEHUB_SERVER)")

	cmd.AddCommand(NewCmdGet())
	cmd.AddCommand(NewCmdWatch())
	cmd.AddCommand(NewCmdCorrelations())
	cmd.AddCommand(NewCmdStatus())
	cmd.AddCommand(NewCmdEnable())
	cmd.AddCommand(NewCmdDisable())
	cmd.AddCommand(NewCmdStats())

	return cmd
}

func ClientExecute() {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Second)
	defer cancel()

	cmd := NewClientCommand()

	err := cmd.ExecuteContext(ctx)

	if span != nil {
		span.End()
	}

	if shutdownTelemetry != nil {
		shutdownTelemetry()
	}

	_ = logger.Sync()

	if err != nil {
		logger.Fatal(ctx, "command failed", zap.Error(err))
	}
}
