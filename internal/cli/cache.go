package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/city-weather/internal/scheduler"
)

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}
	cmd.AddCommand(newCachePruneCmd(opts))
	return cmd
}

func newCachePruneCmd(opts *options) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cache entries older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			maxAge := cfg.Cache.MaxAge
			if cmd.Flags().Changed("older-than") {
				maxAge = olderThan
			}
			if maxAge <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", maxAge)
			}

			cache, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			n, err := scheduler.New(cache, maxAge, cfg.Cache.PruneInterval, logger, nil).RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("pruning cache: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries older than %s.\n", n, maxAge)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "maximum entry age to keep (default cache.max_age)")
	return cmd
}
