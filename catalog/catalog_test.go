package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/stupid-simple/dbbackup/catalog"
)

func setupTestDB(t *testing.T) *catalog.Database {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, catalog.Migrate(gormDB))

	t.Cleanup(func() {
		sqlDB, err := gormDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return &catalog.Database{
		Cli:    gormDB,
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
	}
}

func insert(t *testing.T, db *catalog.Database, id string, createdAt time.Time) {
	err := db.InsertBackup(context.Background(), &catalog.Backup{
		ID:         id,
		FileName:   "backup-" + id + ".db",
		FilePath:   "/backups/backup-" + id + ".db",
		FileSize:   10,
		BackupType: "manual",
		CreatedAt:  createdAt,
	})
	require.NoError(t, err)
}

func TestDatabase_ListBackupsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	insert(t, db, "b", base.Add(time.Hour))
	insert(t, db, "a", base)
	insert(t, db, "d", base.Add(2*time.Hour))
	insert(t, db, "c", base.Add(2*time.Hour))

	backups, err := db.ListBackups(context.Background())
	require.NoError(t, err)

	got := []string{}
	for _, b := range backups {
		got = append(got, b.ID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, got)
}

func TestDatabase_ListBackupsEmpty(t *testing.T) {
	db := setupTestDB(t)

	backups, err := db.ListBackups(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, backups)
	assert.Empty(t, backups)
}

func TestDatabase_FindBackup(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	b, err := db.FindBackup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "backup-a.db", b.FileName)

	_, err = db.FindBackup(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDatabase_FileNameUnique(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	taken, err := db.FileNameTaken(context.Background(), "backup-a.db")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = db.FileNameTaken(context.Background(), "backup-b.db")
	require.NoError(t, err)
	assert.False(t, taken)

	err = db.InsertBackup(context.Background(), &catalog.Backup{
		ID:         "other",
		FileName:   "backup-a.db",
		FilePath:   "/x",
		BackupType: "auto",
	})
	assert.Error(t, err)
}

func TestDatabase_DeleteBackup(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())
	insert(t, db, "b", time.Now().UTC())

	var removed string
	err := db.DeleteBackup(context.Background(), "a", func(b *catalog.Backup) error {
		removed = b.FilePath
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/backups/backup-a.db", removed)

	backups, err := db.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "b", backups[0].ID)
}

func TestDatabase_DeleteBackupKeepsRowOnFileError(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	fileErr := errors.New("device busy")
	err := db.DeleteBackup(context.Background(), "a", func(*catalog.Backup) error {
		return fileErr
	})
	assert.ErrorIs(t, err, fileErr)

	_, err = db.FindBackup(context.Background(), "a")
	assert.NoError(t, err)
}

func TestDatabase_DeleteBackupNotFound(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	called := false
	err := db.DeleteBackup(context.Background(), "missing", func(*catalog.Backup) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, called)

	backups, err := db.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestDatabase_DeleteBackupCommitsAfterFileRemoved(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	file := filepath.Join(t.TempDir(), "backup-a.db")
	require.NoError(t, os.WriteFile(file, []byte("artifact"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := db.DeleteBackup(ctx, "a", func(*catalog.Backup) error {
		if err := os.Remove(file); err != nil {
			return err
		}
		// The caller gives up right after the file is gone.
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.NoFileExists(t, file)

	_, err = db.FindBackup(context.Background(), "a")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDatabase_DeleteBackupCancelled(t *testing.T) {
	db := setupTestDB(t)
	insert(t, db, "a", time.Now().UTC())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.DeleteBackup(ctx, "a", func(*catalog.Backup) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	_, err = db.FindBackup(context.Background(), "a")
	assert.NoError(t, err)
}

func TestSettings_Get(t *testing.T) {
	db := setupTestDB(t)
	s := &catalog.Settings{DB: db}
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "backup_enabled")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMany(ctx, map[string]string{"backup_enabled": "true"}))
	v, ok, err := s.Get(ctx, "backup_enabled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	require.NoError(t, s.SetMany(ctx, map[string]string{"backup_enabled": "false"}))
	v, _, err = s.Get(ctx, "backup_enabled")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}

func TestSettings_SetManyAll(t *testing.T) {
	db := setupTestDB(t)
	s := &catalog.Settings{DB: db}
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string]string{
		"backup_time":      "03:30",
		"backup_frequency": "weekly",
	}))
	require.NoError(t, s.SetMany(ctx, map[string]string{
		"backup_time": "04:00",
	}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"backup_time":      "04:00",
		"backup_frequency": "weekly",
	}, all)
}
