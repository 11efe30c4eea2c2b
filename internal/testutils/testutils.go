//go:build integration

// Package testutils provides shared test infrastructure for integration tests.
package testutils

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestSource defines one year's gzip-compressed CSV payload.
type TestSource struct {
	Year int
	CSV  string
}

// GzipData compresses s.
func GzipData(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip test data: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// StartTestSourceServer starts an HTTP server serving gzip-compressed CSV
// files under /{year}/full.csv.gz, matching the public mirror's layout.
// Unknown years 404.
func StartTestSourceServer(t *testing.T, sources []TestSource) *httptest.Server {
	t.Helper()

	payloads := make(map[string][]byte)
	for _, s := range sources {
		payloads[fmt.Sprintf("/%d/full.csv.gz", s.Year)] = GzipData(t, s.CSV)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
}

// PostgresEnv contains connection information for a Postgres test environment.
type PostgresEnv struct {
	Container testcontainers.Container
	DSN       string
	Host      string
	Port      int
}

// Close terminates the Postgres container.
func (e *PostgresEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// StartPostgresContainer starts a Postgres container with an empty database.
func StartPostgresContainer(t *testing.T, ctx context.Context) *PostgresEnv {
	t.Helper()

	const (
		user     = "postgres"
		password = "postgres"
		database = "dvf_test"
	)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       database,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port.Int(), user, password, database)

	return &PostgresEnv{
		Container: container,
		DSN:       dsn,
		Host:      host,
		Port:      port.Int(),
	}
}
