package repo_test

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "ragline",
		Password: "ragline_pass",
		DBName:   "ragline_test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// testVector fills the fixed 1024-dim column; only the leading components
// carry signal.
func testVector(lead ...float32) []float32 {
	vec := make([]float32, 1024)
	copy(vec, lead)
	return vec
}
