package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"sim-provisioning-notifier/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// MigrateCommands lists the goose commands accepted by Migrate.
var MigrateCommands = []string{"up", "down", "status", "version", "redo", "reset", "up-to", "down-to"}

// Migrate runs a goose command against the embedded SQL migrations.
// version is only used by up-to and down-to.
func Migrate(ctx context.Context, dsn, command string, version int64, log zerolog.Logger) error {
	pgxCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	pgxCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*pgxCfg)
	defer db.Close()

	action, err := migrationAction(db, command, version)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := action(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}

func migrationAction(db *sql.DB, command string, version int64) (func(context.Context) error, error) {
	const dir = "."
	actions := map[string]func(context.Context) error{
		"up":      func(ctx context.Context) error { return goose.UpContext(ctx, db, dir) },
		"down":    func(ctx context.Context) error { return goose.DownContext(ctx, db, dir) },
		"status":  func(ctx context.Context) error { return goose.StatusContext(ctx, db, dir) },
		"version": func(ctx context.Context) error { return goose.VersionContext(ctx, db, dir) },
		"redo":    func(ctx context.Context) error { return goose.RedoContext(ctx, db, dir) },
		"reset":   func(ctx context.Context) error { return goose.ResetContext(ctx, db, dir) },
		"up-to":   func(ctx context.Context) error { return goose.UpToContext(ctx, db, dir, version) },
		"down-to": func(ctx context.Context) error { return goose.DownToContext(ctx, db, dir, version) },
	}
	action, ok := actions[command]
	if !ok {
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
	return action, nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Str("component", "goose").Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatal().Str("component", "goose").Msgf(format, v...)
}
