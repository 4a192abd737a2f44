package cli

import (
	"fmt"
	"time"

	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewCmdCorrelations() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "correlations",
		Short: "List recently active correlation ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			list, err := client.ListCorrelations(ctx, limit)
			if err != nil {
				return fmt.Errorf("could not list correlations: %w", err)
			}

			logger.Info(ctx, "recent correlations", key.Count.Field(list.Count))
			for _, summary := range list.Correlations {
				logger.Info(ctx, "correlation",
					key.CorrelationID.Field(summary.CorrelationID),
					zap.Int64("traces", summary.TraceCount),
					key.DurationMS.Field(time.Duration(summary.DurationMS)*time.Millisecond),
					zap.Strings("sources", summary.Sources),
				)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of correlations to list")

	return cmd
}
