package stocksync

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ndomog/stocksync/stocksqlite"
	"github.com/ndomog/stocksync/stocksync"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Harness runs the record service against a real Postgres and serves it over HTTP
type Harness struct {
	t       *testing.T
	ctx     context.Context
	pool    *pgxpool.Pool
	service *stocksync.Service
	server  *httptest.Server
	jwtAuth *stocksync.JWTAuth
	logger  *slog.Logger
	userID  string
}

// NewHarness uses TEST_DATABASE_URL when set and a throwaway container otherwise.
// The test is skipped in -short mode or when no database can be started.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("stocksync_test"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			t.Skipf("Postgres container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		databaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// Every harness gets its own schema so tests never see each other's rows
	config := stocksync.DefaultServiceConfig()
	config.AppName = "stocksync-integration-test"
	config.Schema = "it_" + uuid.NewString()[:8]
	service, err := stocksync.NewService(ctx, pool, config, logger)
	require.NoError(t, err)
	t.Cleanup(service.Close)

	jwtAuth := stocksync.NewJWTAuth("integration-secret")
	mux := http.NewServeMux()
	stocksync.NewHTTPHandlers(service, config.MaxPayloadBytes, logger).Mount(mux, jwtAuth.Middleware)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &Harness{
		t:       t,
		ctx:     ctx,
		pool:    pool,
		service: service,
		server:  server,
		jwtAuth: jwtAuth,
		logger:  logger,
		userID:  "user-" + uuid.NewString(),
	}
}

// NewDevice returns an offline client with its own SQLite file talking to the harness server
func (h *Harness) NewDevice(name string) *stocksqlite.Client {
	h.t.Helper()
	deviceID := name + "-" + uuid.NewString()
	token := func(context.Context) (string, error) {
		return h.jwtAuth.GenerateToken(h.userID, deviceID, time.Hour)
	}

	db, err := sql.Open("sqlite3", filepath.Join(h.t.TempDir(), name+".db"))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = db.Close() })

	cfg := stocksqlite.DefaultConfig()
	cfg.RemoteTimeout = 10 * time.Second
	cfg.Logger = h.logger.With("device", name)
	client, err := stocksqlite.NewClient(db, stocksqlite.NewHTTPRemote(h.server.URL, token, cfg.RemoteTimeout),
		stocksqlite.StaticIdentity(h.userID), cfg)
	require.NoError(h.t, err)
	return client
}

// UnreachableDevice returns a client whose remote store refuses every call
func (h *Harness) UnreachableDevice(name string) (*stocksqlite.Client, *sql.DB) {
	h.t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(h.t.TempDir(), name+".db"))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = db.Close() })

	cfg := stocksqlite.DefaultConfig()
	cfg.RemoteTimeout = time.Second
	cfg.Logger = h.logger.With("device", name)
	remote := stocksqlite.NewHTTPRemote("http://127.0.0.1:1", nil, time.Second)
	client, err := stocksqlite.NewClient(db, remote, stocksqlite.StaticIdentity(h.userID), cfg)
	require.NoError(h.t, err)
	return client, db
}

// ItemRow reads an item straight from Postgres
func (h *Harness) ItemRow(id string) (name string, quantity int, isDeleted bool, deletedBy string) {
	h.t.Helper()
	query := `SELECT name, quantity, is_deleted, deleted_by FROM ` + h.service.Config().Schema + `.items WHERE id = $1`
	err := h.pool.QueryRow(h.ctx, query, id).Scan(&name, &quantity, &isDeleted, &deletedBy)
	require.NoError(h.t, err)
	return name, quantity, isDeleted, deletedBy
}
