package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/hdulib"
	"github.com/example/seat-scheduler/internal/topology"
)

func newBookCmd() *cobra.Command {
	var (
		file          string
		globalRetries int
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Book seats from a task-list configuration (CONFIG env var or --file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			input := os.Getenv("CONFIG")
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				input = string(b)
			}
			if input == "" {
				return fmt.Errorf("no task configuration: set CONFIG or pass --file")
			}

			tasks, err := booking.ParseTasks(input, cfg, time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Found %d booking task(s)\n", len(tasks))
			printTaskSummary(os.Stdout, tasks)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc := buildService(cfg)
			svc.GlobalRetries = globalRetries

			results := svc.RunAll(ctx, tasks)
			printResults(os.Stdout, results)

			successful := 0
			for _, r := range results {
				if r.Success {
					successful++
				}
			}
			fmt.Fprintf(os.Stdout, "Summary: %d successful, %d failed\n", successful, len(results)-successful)
			return nil
		},
	}

	c.Flags().StringVar(&file, "file", "", "task-list file (overrides the CONFIG env var)")
	c.Flags().IntVar(&globalRetries, "global-retries", 1, "re-run a failed task's whole pipeline up to N times")
	return c
}

// buildService assembles the shared topology cache and the per-task client
// factory around one site profile.
func buildService(cfg *config.Config) *booking.Service {
	cache := buildCache(cfg)
	resolver := topology.NewResolver(cache, cfg.Floors, nil)
	factory := func() booking.Client { return hdulib.New(cfg.API, nil) }
	return booking.NewService(resolver, factory, nil)
}

func buildCache(cfg *config.Config) *topology.Cache {
	var mirror *topology.Mirror
	if cfg.Cache.MirrorPath != "" {
		mirror = topology.NewMirror(cfg.Cache.MirrorPath, time.Duration(cfg.Cache.MirrorMaxAgeHours)*time.Hour)
	}
	fetcher := hdulib.New(cfg.API, nil)
	return topology.NewCache(fetcher, time.Duration(cfg.Cache.TTLHours)*time.Hour, mirror, nil)
}
