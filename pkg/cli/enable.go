package cli

import (
	"fmt"

	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewCmdEnable() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable <correlation-id>",
		Short: "Force a correlation id hot without querying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			change, err := client.Enable(ctx, args[0])
			if err != nil {
				return fmt.Errorf("could not enable tracing: %w", err)
			}

			logger.Info(ctx, "tracing enabled",
				key.CorrelationID.Field(change.CorrelationID),
				key.State.Field(change.State),
				zap.String("previous_state", change.PreviousState),
				zap.Int("ttl", change.TTL),
			)

			return nil
		},
	}

	return cmd
}

func NewCmdDisable() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable <correlation-id>",
		Short: "Drop a correlation id back to cold immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			change, err := client.Disable(ctx, args[0])
			if err != nil {
				return fmt.Errorf("could not disable tracing: %w", err)
			}

			logger.Info(ctx, "tracing disabled",
				key.CorrelationID.Field(change.CorrelationID),
				key.State.Field(change.State),
				zap.String("previous_state", change.PreviousState),
			)

			return nil
		},
	}

	return cmd
}
