package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspects and maintains the persistent result cache",
	}
	cmd.AddCommand(newCacheStatsCmd(), newCacheSweepCmd(), newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints cache occupancy and success/failure counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cfgFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.cache.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			payload := map[string]any{
				"disk":   stats,
				"memory": rt.cache.MemoryStats(),
			}
			if err := enc.Encode(payload); err != nil {
				return fmt.Errorf("write stats: %w", err)
			}
			return nil
		},
	}
}

func newCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Removes expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cfgFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.cache.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("cache sweep: %w", err)
			}
			rt.logger.Info("sweep finished", zap.Int("removed", removed))
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Removes cache entries, optionally only those past a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cfgFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.cache.Clear(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			rt.logger.Info("clear finished", zap.Int("removed", removed))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0,
		"only remove entries cached longer ago than this (0 removes everything)")
	return cmd
}
