package cli

import (
	"fmt"
	"time"

	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewCmdWatch() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch <correlation-id>",
		Short: "Stream traces for a correlation id as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			logger.Info(ctx, "watching correlation", key.CorrelationID.Field(args[0]))

			err := client.StreamTraces(ctx, args[0], timeout, func(trace *db.Trace) {
				logger.Info(ctx, "trace",
					key.SourceID.Field(trace.SourceID),
					key.Direction.Field(trace.Direction),
					key.Endpoint.Field(trace.Endpoint),
					zap.Float64("timestamp", trace.Timestamp),
					zap.String("operation", trace.Operation),
				)
			})
			if err != nil {
				return fmt.Errorf("stream ended with error: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to keep the stream open")

	return cmd
}
