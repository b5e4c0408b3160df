package testutil

import (
	"context"
	"os"
	"testing"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"       // support file scheme for golang_migrate
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/storage/postgres"
)

// ConnString returns the connection string of the CI test database, skipping
// the test if none is configured.
func ConnString(t *testing.T) string {
	connString := os.Getenv("CI_TEST_CONN_STRING")
	if connString == "" || testing.Short() {
		t.Skip("CI_TEST_CONN_STRING not set; skipping postgres test")
	}
	return connString
}

// NewTestClient returns a postgres client used in CI tests.
func NewTestClient(t *testing.T) *postgres.Client {
	connString := ConnString(t)
	logger, err := log.NewLogger("postgres-test", os.Stdout, log.FmtJSON, log.LevelError)
	require.NoError(t, err, "log.NewLogger")

	client, err := postgres.NewClient(connString, logger)
	require.NoError(t, err, "postgres.NewClient")
	return client
}

// NewMigratedTestClient wipes the CI test database, applies the migrations
// found in `migrationsDir` and returns a client for it.
func NewMigratedTestClient(t *testing.T, migrationsDir string) *postgres.Client {
	client := NewTestClient(t)
	require.NoError(t, client.Wipe(context.Background()), "wipe")

	m, err := migrate.New("file://"+migrationsDir, ConnString(t))
	require.NoError(t, err, "migrate.New")
	defer func() {
		_, _ = m.Close()
	}()
	require.NoError(t, m.Up(), "migrate up")
	return client
}
