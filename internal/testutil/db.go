package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres is a throwaway database container with the journal schema applied.
type Postgres struct {
	Container testcontainers.Container
	URL       string
}

// StartPostgres runs a Postgres container and applies every migration.
// Call Terminate when done.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mailagent_test"),
		postgres.WithUsername("mailagent"),
		postgres.WithPassword("mailagent"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Postgres container: %w", err)
	}

	pg := &Postgres{Container: container}
	pg.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, pg.URL)
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		pg.Terminate(ctx)
		return nil, err
	}

	return pg, nil
}

// Terminate stops the container. Errors are ignored.
func (p *Postgres) Terminate(ctx context.Context) {
	_ = p.Container.Terminate(ctx)
}

// NewTestDB starts a migrated Postgres container and returns a small pool to it.
// Both are released when the test finishes. Skipped with -short.
func NewTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}

	ctx := context.Background()

	pg, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("Failed to start Postgres: %v", err)
	}
	t.Cleanup(func() { pg.Terminate(ctx) })

	poolConfig, err := pgxpool.ParseConfig(pg.URL)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// RunMigrations executes every *.up.sql file from migrations/ in filename order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	slices.Sort(files)

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filepath.Base(file), err)
		}
	}

	return nil
}

// findMigrationsDir walks up from the working directory, since tests run from
// their package directory.
func findMigrationsDir() (string, error) {
	candidates := []string{"migrations"}
	for i := 1; i <= 3; i++ {
		candidates = append(candidates, strings.Repeat("../", i)+"migrations")
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found, tried %v", candidates)
}
