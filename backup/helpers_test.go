package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/stupid-simple/dbbackup/backup"
	"github.com/stupid-simple/dbbackup/catalog"
)

type liveFile struct {
	path string
}

func (l liveFile) Path() string { return l.path }

type checkpointedLive struct {
	liveFile
	mu    sync.Mutex
	calls int
}

func (c *checkpointedLive) Checkpoint(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

// fakeClock ticks one second on every read.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func setupCatalog(t *testing.T) *catalog.Database {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, catalog.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &catalog.Database{
		Cli:    gormDB,
		Logger: zerolog.Nop(),
	}
}

type testEnv struct {
	store     *backup.Store
	catalog   *catalog.Database
	livePath  string
	backupDir string
}

func writeLive(t *testing.T, path string, content []byte) {
	require.NoError(t, os.WriteFile(path, content, 0600))
}

func setupStore(t *testing.T, live backup.LiveDatabase, db *catalog.Database, backupDir string, opts ...backup.StoreOption) *backup.Store {
	store, err := backup.NewStore(backup.StoreParams{
		Catalog: db,
		Live:    live,
		Dir:     backupDir,
		Logger:  zerolog.New(zerolog.NewTestWriter(t)),
	}, opts...)
	require.NoError(t, err)
	return store
}

func newTestEnv(t *testing.T, content []byte, opts ...backup.StoreOption) *testEnv {
	liveDir := t.TempDir()
	livePath := filepath.Join(liveDir, "app.db")
	writeLive(t, livePath, content)

	db := setupCatalog(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	return &testEnv{
		store:     setupStore(t, liveFile{path: livePath}, db, backupDir, opts...),
		catalog:   db,
		livePath:  livePath,
		backupDir: backupDir,
	}
}

func dirEntries(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
