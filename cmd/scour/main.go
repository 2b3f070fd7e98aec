package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/scour/internal/config"
	"github.com/rzbill/scour/internal/runtime"
	"github.com/rzbill/scour/internal/scavenge"
	pebblestore "github.com/rzbill/scour/internal/storage/pebble"
	logpkg "github.com/rzbill/scour/pkg/log"
)

var version = "dev"

func main() {
	level := os.Getenv("SCOUR_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "scour",
		Short: "Scour scavenge state CLI",
		Long:  "Scour reclaims space in a chunked event log. This CLI inspects the durable scavenge state of a node.",
	}
	rootCmd.PersistentFlags().String("data-dir", "", "Scavenge state directory (defaults to the OS data dir)")
	rootCmd.PersistentFlags().String("config", "", "Path to a JSON config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the scour version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("scour", version)
		},
	})

	stateCmd := &cobra.Command{Use: "state", Short: "Inspect durable scavenge state"}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "checkpoint",
		Short: "Show the current scavenge checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, logger, func(rt *runtime.Runtime) error {
				cp, err := rt.State().LoadCheckpoint()
				if err != nil {
					return err
				}
				fmt.Println(cp.String())
				return nil
			})
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "collisions",
		Short: "List stream names with colliding hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, logger, func(rt *runtime.Runtime) error {
				names, err := rt.State().Collisions()
				if err != nil {
					return err
				}
				sort.Strings(names)
				for _, n := range names {
					fmt.Println(n)
				}
				fmt.Printf("%d collision(s)\n", len(names))
				return nil
			})
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "weights",
		Short: "List pending chunk weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, logger, func(rt *runtime.Runtime) error {
				weights, err := rt.State().ChunkWeights()
				if err != nil {
					return err
				}
				chunks := make([]int, 0, len(weights))
				for c := range weights {
					chunks = append(chunks, c)
				}
				sort.Ints(chunks)
				for _, c := range chunks {
					fmt.Printf("chunk %d\tweight %.1f\n", c, weights[c])
				}
				return nil
			})
		},
	})

	streamsCmd := &cobra.Command{
		Use:   "streams",
		Short: "List per-stream discard points",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withRuntime(cmd, logger, func(rt *runtime.Runtime) error {
				var after *scavenge.StreamHandle
				printed := 0
				for printed < limit {
					recs, err := rt.State().EnumerateOriginalStreams(after, min(limit-printed, 500))
					if err != nil {
						return err
					}
					if len(recs) == 0 {
						break
					}
					for i := range recs {
						rec := recs[i]
						fmt.Printf("%s\tstatus=%s\tdiscard=%s\tmaybe=%s\n",
							rec.Handle, rec.Data.Status, rec.Data.DiscardPoint, rec.Data.MaybeDiscardPoint)
						printed++
					}
					last := recs[len(recs)-1].Handle
					after = &last
				}
				return nil
			})
		},
	}
	streamsCmd.Flags().Int("limit", 1000, "Maximum streams to print")
	stateCmd.AddCommand(streamsCmd)

	rootCmd.AddCommand(stateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withRuntime(cmd *cobra.Command, logger logpkg.Logger, fn func(rt *runtime.Runtime) error) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}

	rt, err := runtime.Open(runtime.Options{
		DataDir: cfg.DataDir,
		Fsync:   pebblestore.FsyncModeAlways,
		Config:  cfg,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open state at %s: %w", cfg.DataDir, err)
	}
	defer rt.Close()
	return fn(rt)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
