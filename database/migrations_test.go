package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "postgres://u:p@localhost:5432/db?sslmode=disable", want: "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{in: "postgresql://u@db/mirror", want: "pgx5://u@db/mirror"},
		{in: "pgx5://u@db/mirror", want: "pgx5://u@db/mirror"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, migrateURL(tt.in))
		})
	}
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	m, err := NewFromConnectionString(pool.Config().ConnString())
	require.NoError(t, err)
	defer m.Close()

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, fnames)

	// SetupTestDBContainer already applied everything.
	require.NoError(t, m.Steps(-len(fnames)))
	require.NoError(t, m.Steps(len(fnames)))

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)

	connString := pool.Config().ConnString()
	require.NoError(t, MigrateDown(connString, 0))
	_, _, err = GetVersion(connString)
	assert.ErrorIs(t, err, migrate.ErrNilVersion)

	require.NoError(t, MigrateDown(connString, 0), "reverting an empty schema is a no-op")
	require.NoError(t, MigrateUp(connString))
	require.NoError(t, MigrateDown(connString, 1))
	require.NoError(t, MigrateUp(connString))

	version, dirty, err = GetVersion(connString)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)

	assert.Error(t, MigrateDown(connString, -1))
}
