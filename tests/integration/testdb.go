// Package integration runs the persistence layer and the batch jobs against
// a real PostgreSQL started with testcontainers.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"

	"github.com/propledger/backend/internal/infrastructure/migration"
	"github.com/propledger/backend/internal/infrastructure/persistence"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	*persistence.Database
	DSN string
}

// requireIntegration skips unless integration tests were asked for
func requireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Set INTEGRATION_TEST=1 to run against PostgreSQL")
	}
}

// NewTestDB starts PostgreSQL, applies the embedded migrations and connects
// the application's database wrapper. Everything is torn down on cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	requireIntegration(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("billing_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrate(t, dsn, func(m *migration.Migrator) error { return m.Up() })

	db := open(t, dsn)
	t.Cleanup(func() { _ = db.Close() })
	return &TestDB{Database: db, DSN: dsn}
}

// migrate runs fn on a dedicated connection. Closing the migrator closes
// the connection too.
func migrate(t *testing.T, dsn string, fn func(*migration.Migrator) error) {
	t.Helper()
	db := open(t, dsn)
	sqlDB, err := db.SQL()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, migration.Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	require.NoError(t, fn(m))
}

func open(t *testing.T, dsn string) *persistence.Database {
	t.Helper()
	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := persistence.Open(postgres.Open(dsn), gormlogger.Default.LogMode(level))
	require.NoError(t, err, "Failed to connect to database")
	return db
}
