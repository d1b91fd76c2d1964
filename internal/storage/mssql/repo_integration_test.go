//go:build integration

package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"dashboard/internal/storage/storagetest"
)

// getTestDSN reads the MSSQL_TEST_DSN environment variable.
// If it is empty, the caller should skip the test.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MSSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MSSQL_TEST_DSN not set; skipping mssql integration tests")
	}
	return dsn
}

func TestEngineIntegration(t *testing.T) {
	dsn := getTestDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := NewEngine(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewEngine() error = %v, want nil", err)
	}
	defer eng.Close()

	if err := eng.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	storagetest.Run(t, eng, "it_mssql")
}
