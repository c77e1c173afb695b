// migrate applies or rolls back the embedded SQL migrations: go run ./cmd/migrate up|down|version.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"territory-service/internal/config"
	"territory-service/internal/db/migrate"
	"territory-service/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the territory database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runDirection(migrate.Up),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every applied migration",
	RunE:  runDirection(migrate.Down),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		v, dirty, err := migrate.Version(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
}

func runDirection(d migrate.Direction) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := migrate.Run(cfg.DatabaseURL, d, logger); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("direction", string(d)))
		return nil
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
