// Package servicetest starts a throwaway PostgreSQL container and loads
// the schema so service tests can run against a real database.
package servicetest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/database"
	"github.com/obsplan/obsplan/pkg/logger"
)

const postgresImage = "postgres:16-alpine"

// Logger returns a logger that discards all output.
func Logger() *logger.Logger {
	log := logger.New("servicetest", "test")
	log.SetOutput(io.Discard)
	return log
}

// StartPostgres launches a PostgreSQL container, applies the schema and
// returns a pool connected to it. The container and pool are torn down
// when the test finishes. Tests are skipped in short mode and when no
// container runtime is available.
func StartPostgres(t *testing.T) *database.PostgreSQL {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "obsplan",
			"POSTGRES_PASSWORD": "obsplan",
			"POSTGRES_DB":       "obsplan",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := func() (c testcontainers.Container, err error) {
		// testcontainers panics (rather than returning an error) when no
		// container runtime can be found; recover so the skip below fires.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("container runtime lookup panicked: %v", r)
			}
		}()
		return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if err != nil {
		t.Skipf("Skipping integration test, container runtime unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to resolve container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to resolve mapped port: %v", err)
	}

	applySchema(t, ctx, host, port.Int())

	db, err := database.New(ctx, config.DatabaseConfig{
		Host:           host,
		Port:           port.Int(),
		User:           "obsplan",
		Password:       "obsplan",
		Name:           "obsplan",
		SSLMode:        "disable",
		MaxConnections: 5,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to connect to container database: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}

// applySchema runs migrations/schema.sql against the fresh database. The
// file holds multiple statements, so the connection uses the simple query
// protocol.
func applySchema(t *testing.T, ctx context.Context, host string, port int) {
	t.Helper()

	ddl, err := os.ReadFile(schemaPath())
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}

	connString := fmt.Sprintf(
		"postgres://obsplan:obsplan@%s:%d/obsplan?sslmode=disable&default_query_exec_mode=simple_protocol",
		host, port)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect for schema load: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, string(ddl)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
}

func schemaPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations", "schema.sql")
}
