package mssql

import (
	"context"
	"testing"

	mssqldb "github.com/microsoft/go-mssqldb"

	"dashboard/internal/storage"
)

func TestMSSQLStorageRegistrationUsesNewEngineHook(t *testing.T) {
	ctx := context.Background()

	orig := newEngine
	defer func() { newEngine = orig }()

	called := false
	newEngine = func(ctx context.Context, cfg Config) (storage.Engine, error) {
		called = true
		if cfg.DSN != "sqlserver://sa:pw@localhost:1433?database=dash" {
			t.Errorf("hook cfg.DSN = %q", cfg.DSN)
		}
		return storage.NewSQLEngine(nil, nil, nil), nil
	}
	if _, err := storage.New(ctx, storage.Config{Kind: "mssql", DSN: "sqlserver://sa:pw@localhost:1433?database=dash"}); err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if !called {
		t.Fatalf("newEngine hook was not called")
	}
}

func TestIsConnError(t *testing.T) {
	t.Parallel()

	if !isConnError(mssqldb.Error{Number: 18456, Message: "Login failed"}) {
		t.Fatalf("login failure not classified as unavailability")
	}
	if isConnError(mssqldb.Error{Number: 102, Message: "Incorrect syntax"}) {
		t.Fatalf("syntax error classified as unavailability")
	}
}
