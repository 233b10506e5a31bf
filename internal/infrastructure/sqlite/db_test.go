package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/wikictl/internal/sessions/domain"
)

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "state.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewDB")
	require.True(t, info.IsDir(), "Should be a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewDB_RunsMigrations verifies that both tables exist after NewDB.
func TestNewDB_RunsMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"sessions", "invocations", migrationsTable} {
		var name string
		err = db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "%s table should exist after migrations", table)
	}

	var version int
	var dirty bool
	require.NoError(t, db.conn.QueryRow("SELECT version, dirty FROM "+migrationsTable).Scan(&version, &dirty))
	require.Equal(t, 1, version)
	require.False(t, dirty)
}

// TestNewDB_PreMigrationBackup verifies that reopening an existing database
// leaves a .bak copy next to it.
func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	_, err = db1.conn.Exec(
		"INSERT INTO sessions (profile, endpoint, cookies, updated_at) VALUES (?, ?, ?, ?)",
		"default", "https://wiki.example.org/w/api.php", "[]", 1000,
	)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	_, err = os.Stat(dbPath + ".bak")
	require.True(t, os.IsNotExist(err), "first open should not create a backup")

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second NewDB")
	require.Greater(t, info.Size(), int64(0))

	// The data survived the reopen.
	_, err = db2.SessionRepository().FindByProfile(t.Context(), "default")
	require.NoError(t, err)
}

// TestNewDB_BackupIncludesWAL verifies the backup holds rows that are still in
// the write-ahead log of another open connection.
func TestNewDB_BackupIncludesWAL(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db1.Close()
	_, err = db1.conn.Exec(
		"INSERT INTO sessions (profile, endpoint, cookies, updated_at) VALUES (?, ?, ?, ?)",
		"default", "https://wiki.example.org/w/api.php", "[]", 1000,
	)
	require.NoError(t, err)

	// A stale backup from an earlier run is replaced.
	require.NoError(t, os.WriteFile(dbPath+".bak", []byte("stale"), 0o600))

	db2, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	bak, err := sql.Open("sqlite3", "file:"+dbPath+".bak")
	require.NoError(t, err)
	defer bak.Close()

	var count int
	require.NoError(t, bak.QueryRow("SELECT COUNT(*) FROM sessions WHERE profile = ?", "default").Scan(&count))
	require.Equal(t, 1, count)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dbPath + ".bak")
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)
}

func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

func TestDB_Repositories(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	var _ domain.SessionRepository = db.SessionRepository()
	var _ domain.InvocationRepository = db.InvocationRepository()
	require.NotEmpty(t, db.Path())
}

func TestMigrateDriver_Lock(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	d, err := newMigrateDriver(db.conn)
	require.NoError(t, err)

	require.NoError(t, d.Lock())
	require.Error(t, d.Lock(), "second Lock should fail")
	require.NoError(t, d.Unlock())
	require.Error(t, d.Unlock(), "Unlock without Lock should fail")
}

func TestMigrateDriver_DropRemovesTables(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	d, err := newMigrateDriver(db.conn)
	require.NoError(t, err)
	require.NoError(t, d.Drop())

	var count int
	require.NoError(t, db.conn.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'",
	).Scan(&count))
	require.Zero(t, count)
}
