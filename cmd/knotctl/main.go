// Command knotctl is the operator CLI: local-storage migration, synthetic
// seed exports and one-off compatibility scoring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knot-backend/internal/logging"
)

// settings are read from the environment so tokens stay out of shell
// history.
type settings struct {
	APIURL   string `env:"KNOT_API_URL" envDefault:"http://localhost:4000"`
	APIToken string `env:"KNOT_API_TOKEN"`
	LogLevel string `env:"KNOT_LOG_LEVEL" envDefault:"info"`
}

var (
	cfg settings
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "knotctl",
	Short:         "Operate a Make My Knot backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.Parse(&cfg); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		l, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, restoreCmd, seedCmd, scoreCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
