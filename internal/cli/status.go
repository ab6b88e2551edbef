package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/iulog/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the writer counters of a running 'iulog serve'",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if targetOverride != "" {
			cfg.Target = targetOverride
		}
		if cfg.Target == "" {
			cfg.Target = "http://localhost" + cfg.Listen
		}

		stats, err := engine.NewClient(cfg).Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", cfg.Target, err)
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&targetOverride, "target", "", "URL of the running server")
}
