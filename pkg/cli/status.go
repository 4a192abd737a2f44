package cli

import (
	"fmt"

	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewCmdStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which correlation ids are currently hot or warm",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			status, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("could not fetch tracing status: %w", err)
			}

			logger.Info(ctx, "tracked correlations", key.Count.Field(status.Count))
			for _, entry := range status.Correlations {
				logger.Info(ctx, "correlation",
					key.CorrelationID.Field(entry.CorrelationID),
					key.State.Field(entry.State),
					key.Rate.Field(entry.Rate),
					zap.Int64("remaining_ttl", entry.RemainingTTL),
				)
			}

			return nil
		},
	}

	return cmd
}
