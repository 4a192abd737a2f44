package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/muid-io/tracehub/pkg/client"
	"github.com/spf13/cobra"
)

func NewCmdStats() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dump server statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client := client.FromContext(ctx)

			stats, err := client.Stats(ctx)
			if err != nil {
				return fmt.Errorf("could not fetch stats: %w", err)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(stats)
		},
	}

	return cmd
}
