package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "seatsched",
		Short: "Library seat scheduler that books study-room seats when the reservation window opens",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().String("config", "config.yaml", "site profile (YAML)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newBookCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRoomsCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the site profile for a command and wires logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}
