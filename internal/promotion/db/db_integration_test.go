//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-promotion/internal/database/migrations"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
	"ms-promotion/internal/promotion/db"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func setupPostgres(t *testing.T) (*db.DB, *bun.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "promo",
				"POSTGRES_PASSWORD": "promo",
				"POSTGRES_DB":       "promotions",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://promo:promo@%s:%s/promotions?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: "../../../migrations",
		AutoMigrate:   true,
	}, logger.New(nil))
	require.NoError(t, runner.RunMigrations())
	t.Cleanup(func() { _ = runner.Close() })

	return db.New(bunDB), bunDB
}

func TestPostgresMigrationsApply(t *testing.T) {
	_, bunDB := setupPostgres(t)

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: "../../../migrations"}, logger.New(nil))
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestPostgresOnePendingOrderPerEvent(t *testing.T) {
	store, bunDB := setupPostgres(t)
	ctx := context.Background()
	event := seedEvent(t, bunDB, nil)

	_, err := store.ReplacePendingOrder(ctx, newOrder(event.ID, baseTime))
	require.NoError(t, err)

	// bypassing ReplacePendingOrder hits the partial unique index
	_, err = bunDB.NewInsert().Model(newOrder(event.ID, baseTime)).Exec(ctx)
	assert.Error(t, err)

	superseded, err := store.ReplacePendingOrder(ctx, newOrder(event.ID, baseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Len(t, superseded, 1)
}

func TestPostgresConcurrentCompletePayment(t *testing.T) {
	store, bunDB := setupPostgres(t)
	ctx := context.Background()
	event := seedEvent(t, bunDB, nil)

	order := newOrder(event.ID, baseTime)
	order.GatewaySessionID = "cs_test_pg"
	_, err := store.ReplacePendingOrder(ctx, order)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := store.CompletePayment(ctx, order, "cs_test_pg", baseTime.AddDate(0, 0, 7), baseTime)
			assert.NoError(t, err)
			if applied {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
	require.NotNil(t, got.PremiumUntil)
	assert.True(t, got.PremiumUntil.Equal(baseTime.AddDate(0, 0, 7)))

	paid, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
}
