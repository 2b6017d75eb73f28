package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Extracts a single URL and reports the result",
		Long: `Runs the full pipeline for one URL, bypassing batching: reports which
strategy handled it, whether the result came from the cache, and the
extracted record or failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cfgFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			report := rt.engine.CheckURL(cmd.Context(), args[0])
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
}
