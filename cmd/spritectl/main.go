package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"timeline-engine/internal/platform/config"
	"timeline-engine/internal/sprite"

	"github.com/spf13/cobra"
)

// spritectl is a maintenance tool for the sprite store: it prunes stale
// records, lists usage metadata, and deletes individual sprites without
// going through the HTTP server.
func main() {
	_ = config.Load()

	var redisAddr string

	root := &cobra.Command{
		Use:          "spritectl",
		Short:        "Maintain the thumbnail sprite store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&redisAddr, "redis", config.GetEnv("REDIS_ADDR", "localhost:6379"), "Redis address of the sprite store")

	var maxAge time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove sprites unused for longer than the max age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), redisAddr, func(st sprite.Store) error {
				n, err := st.PruneOlderThan(cmd.Context(), time.Now().Add(-maxAge))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d sprite(s)\n", n)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&maxAge, "max-age", sprite.DefaultMaxAge, "Maximum age since last use")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show sprite store usage metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), redisAddr, func(st sprite.Store) error {
				ms, err := st.ListMetadata(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d sprite(s)\n", len(ms))
				for _, m := range ms {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tcreated %s\tlast used %s\n",
						m.Key,
						m.CreatedAt.Format(time.RFC3339),
						m.LastUsedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete one sprite by cache key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), redisAddr, func(st sprite.Store) error {
				return st.DeleteRecord(cmd.Context(), args[0])
			})
		},
	}

	root.AddCommand(prune, stats, del)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withStore(ctx context.Context, redisAddr string, fn func(sprite.Store) error) error {
	if redisAddr == "" {
		return errors.New("redis address is required (set REDIS_ADDR or --redis)")
	}
	st, err := sprite.OpenRedisStore(ctx, redisAddr)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
