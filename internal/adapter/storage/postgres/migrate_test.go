package postgres

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"sim-provisioning-notifier/migrations"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationAction_KnownCommands(t *testing.T) {
	for _, cmd := range MigrateCommands {
		action, err := migrationAction(nil, cmd, 0)
		require.NoError(t, err, cmd)
		assert.NotNil(t, action, cmd)
	}
}

func TestMigrationAction_UnknownCommand(t *testing.T) {
	_, err := migrationAction(nil, "sideways", 0)
	assert.ErrorContains(t, err, "unknown migrate command")
}

func TestMigrate_InvalidDSN(t *testing.T) {
	err := Migrate(t.Context(), "postgres://%zz", "up", 0, zerolog.Nop())
	assert.ErrorContains(t, err, "parsing database config")
}

func TestMigrations_EmbeddedAndOrdered(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Len(t, names, 5)
	assert.Equal(t, "00001_create_sims.sql", names[0])
	assert.Equal(t, "00004_create_webhook_deliveries.sql", names[3])

	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(body), "-- +goose Up"), name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestGooseLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	l := gooseLogger{log: zerolog.New(&buf)}
	l.Printf("OK   %s", "00001_create_sims.sql")
	assert.Contains(t, buf.String(), `"component":"goose"`)
	assert.Contains(t, buf.String(), "00001_create_sims.sql")
}
