package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

func migrationsDir(dialect string) string {
	if dialect == DialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func gooseDialect(dialect string) string {
	if dialect == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func prepareGoose(dialect string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB, dialect string, logger *zap.Logger) error {
	if err := prepareGoose(dialect); err != nil {
		return err
	}

	dir := migrationsDir(dialect)
	logger.Info("Checking for pending migrations...", zap.String("dir", dir))

	if err := goose.Up(db, dir); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations completed successfully")
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(db *sql.DB, dialect string) error {
	if err := prepareGoose(dialect); err != nil {
		return err
	}
	if err := goose.Down(db, migrationsDir(dialect)); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// ResetSchema rolls back every migration and applies them again.
func ResetSchema(db *sql.DB, dialect string, logger *zap.Logger) error {
	if err := prepareGoose(dialect); err != nil {
		return err
	}

	logger.Warn("Resetting database schema", zap.String("dialect", dialect))

	if err := goose.Reset(db, migrationsDir(dialect)); err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}

	return RunMigrations(db, dialect, logger)
}

// MigrationStatus prints the applied/pending state of every migration.
func MigrationStatus(db *sql.DB, dialect string) error {
	if err := prepareGoose(dialect); err != nil {
		return err
	}
	return goose.Status(db, migrationsDir(dialect))
}

// MigrationVersion returns the current schema version.
func MigrationVersion(db *sql.DB, dialect string) (int64, error) {
	if err := prepareGoose(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
