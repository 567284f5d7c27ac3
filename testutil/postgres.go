package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/channel-tender/db"
)

// SetupTestDB opens the database named by TEST_PG_DSN, prepares the schema and empties the
// override table. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Prepare(ctx, database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(ctx, `DELETE FROM channel_overrides`); err != nil {
		database.Close()
		t.Fatalf("failed to reset overrides: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
