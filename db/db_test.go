package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func TestNew(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "nested", "dir", "fio.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
}

func TestInitialize(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"accounts", "transactions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, table, name)
	}

	// Initialize is safe to run on an existing database
	assert.NoError(t, db.Initialize())
}
