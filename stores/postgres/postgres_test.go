package postgres_test

import (
	"context"
	"os"
	"testing"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/stores/postgres"
	"github.com/panyam/siteauth/stores/storetest"
)

func TestPostgresAdapter(t *testing.T) {
	dsn := os.Getenv("SITEAUTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SITEAUTH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storetest.RunAdapterTests(t, func(t *testing.T) sa.Adapter {
		if _, err := db.ExecContext(ctx, `TRUNCATE users, accounts, sessions, verification_tokens`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return postgres.NewAdapter(db)
	})
}
