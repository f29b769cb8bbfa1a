package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	// RustFSAccessKey and RustFSSecretKey are the credentials the S3
	// container is started with.
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// startContainer runs req. The container is removed when the test finishes.
func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if container != nil {
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				t.Logf("failed to terminate %s: %v", req.Image, err)
			}
		})
	}
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	return container
}

// PostgresContainer is a throwaway pgvector-enabled PostgreSQL.
type PostgresContainer struct {
	addr string
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	container := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sheetrag",
			"POSTGRES_PASSWORD": "sheetrag",
			"POSTGRES_DB":       "sheetrag",
		},
		// postgres restarts once after initdb, so the ready line appears twice
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})

	addr, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		t.Fatalf("failed to resolve postgres endpoint: %v", err)
	}
	return &PostgresContainer{addr: addr}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://sheetrag:sheetrag@%s/sheetrag?sslmode=disable", pc.addr)
}

// NewTestPool migrates the container's database and returns a pool on it.
// The pool is closed when the test finishes.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer) *pgxpool.Pool {
	t.Helper()

	pool, err := database.NewPool(ctx, database.Config{
		URL:            pc.ConnectionString(),
		MaxConns:       4,
		ConnectTimeout: 15 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.RunMigrations(pc.ConnectionString()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}

// RustFSContainer is a throwaway S3-compatible object store.
type RustFSContainer struct {
	addr string
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()
	container := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})

	addr, err := container.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		t.Fatalf("failed to resolve rustfs endpoint: %v", err)
	}
	return &RustFSContainer{addr: addr}
}

func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.addr
}
