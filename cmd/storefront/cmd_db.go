package main

import (
	"fmt"

	"storefront/internal/database"
	"storefront/internal/database/seeders"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// withDB opens the configured database for a maintenance command.
func withDB(run func(db *database.Service, log *zap.Logger) error) error {
	cfg, log, err := boot()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return run(db, log)
}

// storefront migrate [up|down|status]
var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or inspect schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		return withDB(func(db *database.Service, log *zap.Logger) error {
			sqlDB := db.DB().DB
			switch action {
			case "down":
				if err := database.RollbackMigration(sqlDB, db.Dialect()); err != nil {
					return err
				}
			case "status":
				return database.MigrationStatus(sqlDB, db.Dialect())
			default:
				if err := database.RunMigrations(sqlDB, db.Dialect(), log); err != nil {
					return err
				}
			}

			version, err := database.MigrationVersion(sqlDB, db.Dialect())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		})
	},
}

// storefront seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the admin account and the demo catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *database.Service, log *zap.Logger) error {
			if err := database.RunMigrations(db.DB().DB, db.Dialect(), log); err != nil {
				return err
			}
			return seeders.New(db.DB(), log).Run(cmd.Context())
		})
	},
}

var skipSeed bool

// storefront reset [--no-seed]
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every table, migrate from scratch and load the demo catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *database.Service, log *zap.Logger) error {
			if err := database.ResetSchema(db.DB().DB, db.Dialect(), log); err != nil {
				return err
			}
			if skipSeed {
				fmt.Fprintln(cmd.OutOrStdout(), "schema reset")
				return nil
			}
			if err := seeders.New(db.DB(), log).Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema reset and seeded")
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().BoolVar(&skipSeed, "no-seed", false, "leave the database empty after the reset")
}
