package database

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

const (
	testDBName = "catalog_mirror_test"
	testDBUser = "catalog_mirror"
	testDBPass = "catalog_mirror"

	// testImageEnvVar overrides the Postgres image, e.g. to test another major version.
	testImageEnvVar  = "CATALOG_MIRROR_TEST_POSTGRES_IMAGE"
	defaultTestImage = "postgres:16-alpine"
)

// SetupTestDBContainer starts a Postgres container, applies the migrations and
// returns a pool connected to it. Tests are skipped in -short mode.
func SetupTestDBContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	image := os.Getenv(testImageEnvVar)
	if image == "" {
		image = defaultTestImage
	}

	postgresContainer, err := postgres.Run(
		ctx,
		image,
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, MigrateUp(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanupFunc := func() {
		pool.Close()
		tc.CleanupContainer(t, postgresContainer)
	}

	return pool, cleanupFunc
}
