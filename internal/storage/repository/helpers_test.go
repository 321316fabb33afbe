package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/asterscholar-auth/internal/migrations"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции проекта
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(ctx, connStr)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	t.Cleanup(func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return storage
}

// TestDataFactory создаёт тестовые данные напрямую через хранилище
type TestDataFactory struct {
	storage *Storage
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

func (f *TestDataFactory) CreateUser(t *testing.T, email string) string {
	t.Helper()
	uid, err := f.storage.RegisterUser(context.Background(), models.User{
		Email:        email,
		PasswordHash: "hashedpassword",
		IsActive:     true,
	})
	require.NoError(t, err)
	return uid
}

func (f *TestDataFactory) SetStatus(t *testing.T, uid string, status models.SubscriptionStatus, eventAt *time.Time) {
	t.Helper()
	_, err := f.storage.DB.Exec(`UPDATE users SET subscription_status = $1, subscription_event_at = $2 WHERE uid = $3`,
		status, eventAt, uid)
	require.NoError(t, err)
}

func (f *TestDataFactory) CreateCheckout(t *testing.T, userUID string) string {
	t.Helper()
	id := newUUID()
	require.NoError(t, f.storage.CreateCheckoutSession(context.Background(), models.CheckoutSession{
		CheckoutID: id,
		UserUID:    userUID,
		ProductID:  "pro-monthly",
	}))
	return id
}
