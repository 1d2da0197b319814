package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/mocklens/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations brings the schema up to date from the embedded SQL files and
// returns the schema version the database ends on.
func RunMigrations(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Debug("migration applied",
			"component", "store",
			"version", r.Source.Version,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
