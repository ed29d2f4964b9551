package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/booking"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <task-file>",
		Short: "Parse a task-list file and report what would run, without booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			tasks, err := booking.ParseTasks(string(b), cfg, time.Now())
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			fmt.Fprintf(os.Stdout, "Configuration is valid! Found %d task(s)\n", len(tasks))
			for i, t := range tasks {
				begin := time.Unix(t.BeginTime, 0)
				fmt.Fprintf(os.Stdout, "  %d. %s - Floor %s, Seat %s at %s for %dh\n",
					i+1, t.UserName, t.FloorID, t.SeatNumber, begin.Format("2006-01-02 15:04"), t.Duration)
			}
			return nil
		},
	}
}
