//go:build integration

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	testContainer *postgres.PostgresContainer
	testDSN       string
	once          sync.Once
	initErr       error
)

// testStore returns a Store backed by a throwaway Postgres testcontainer
// with every migration applied, shared across the package's tests.
// Grounded on rendis-doc-assembly's core/internal/testing/testhelper
// container.go singleton-container pattern.
func testStore(t *testing.T) *Store {
	t.Helper()

	once.Do(func() {
		testDSN, initErr = setupTestContainer()
	})
	if initErr != nil {
		t.Skipf("skipping integration test: %v", initErr)
	}

	if err := Migrate(testDSN); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := Open(context.Background(), testDSN)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func setupTestContainer() (string, error) {
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("esign_test"),
		postgres.WithUsername("esign"),
		postgres.WithPassword("esign"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", fmt.Errorf("starting postgres: %w", err)
	}
	testContainer = c

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", fmt.Errorf("connection string: %w", err)
	}
	return dsn, nil
}
