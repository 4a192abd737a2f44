package cli

import (
	"fmt"

	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewCmdGet() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:  "get <correlation-id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			result, err := client.GetTraces(ctx, args[0], source)
			if err != nil {
				return fmt.Errorf("could not fetch traces: %w", err)
			}

			logger.Info(ctx, "trace chain",
				key.CorrelationID.Field(result.CorrelationID),
				key.Count.Field(result.Count),
				zap.Bool("complete", result.Complete),
			)
			for _, trace := range result.Traces {
				logger.Info(ctx, "trace",
					key.SourceID.Field(trace.SourceID),
					key.Direction.Field(trace.Direction),
					key.Endpoint.Field(trace.Endpoint),
					zap.Float64("timestamp", trace.Timestamp),
					zap.String("operation", trace.Operation),
				)
			}

			if result.AdaptiveHint != nil {
				logger.Warn(ctx, result.AdaptiveHint.Message,
					key.State.Field(result.AdaptiveHint.CurrentState),
					zap.Int("retry_after_seconds", result.AdaptiveHint.RetryAfterSeconds),
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only list traces from this source")

	return cmd
}
