package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PortNumber53/design-feedback/backend/internal/config"
	"github.com/PortNumber53/design-feedback/backend/internal/logging"
	"github.com/PortNumber53/design-feedback/backend/internal/migrations"
)

// db is opened by the root command before any subcommand runs.
var db *sql.DB

var rootCmd = &cobra.Command{
	Use:           "dbtool",
	Short:         "Database administration for the billing backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "dbtool"})

		conn, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		db = conn
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("applying migrations")
		if err := migrations.Up(db); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		log.Info().Msg("migrations applied successfully")
		return nil
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Recover from a migration that failed halfway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migrations.FixDirtyDatabase(db); err != nil {
			return fmt.Errorf("failed to fix dirty database: %w", err)
		}
		log.Info().Msg("database fixed successfully")
		return nil
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the recorded schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		if err := migrations.ForceVersion(db, uint(v)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		log.Info().Uint64("version", v).Msg("database version forced")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := migrations.CurrentStatus(db)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case status.Fresh:
			fmt.Fprintln(out, "no migrations applied")
		case status.Dirty:
			fmt.Fprintf(out, "version %d (dirty; run `dbtool fix`)\n", status.Version)
		default:
			fmt.Fprintf(out, "version %d\n", status.Version)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, fixCmd, forceCmd, statusCmd)
}

func main() {
	// Load environment variables
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dbtool:", err)
		os.Exit(1)
	}
}
