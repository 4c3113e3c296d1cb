package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/catalog"
	"github.com/stupid-simple/dbbackup/fileutils"
	"github.com/stupid-simple/dbbackup/retention"
)

const (
	fileNamePrefix  = "backup-"
	fileNameExt     = ".db"
	fileNameLayout  = "20060102T150405.000Z"
	maxNameAttempts = 1000
	artifactPerm    = 0o600
)

// LiveDatabase resolves the live database file.
type LiveDatabase interface {
	Path() string
}

// Checkpointer is implemented by live databases that buffer writes outside
// the main file and can flush them before a copy.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

type StoreParams struct {
	Catalog *catalog.Database
	Live    LiveDatabase
	Dir     string // directory holding the artifacts
	Logger  zerolog.Logger
}

// Store creates, lists and deletes backups of the live database.
type Store struct {
	// mu serializes every operation reading or writing the live database file
	// or an artifact, restores included.
	mu       sync.Mutex
	catalog  *catalog.Database
	live     LiveDatabase
	dir      string
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

func NewStore(params StoreParams, opts ...StoreOption) (*Store, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("no catalog specified")
	}
	if params.Live == nil {
		return nil, fmt.Errorf("no live database specified")
	}
	if params.Dir == "" {
		return nil, fmt.Errorf("no backup directory specified")
	}

	dir, err := filepath.Abs(params.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve backup directory: %w", err)
	}
	if err := fileutils.EnsureWritableDir(dir); err != nil {
		return nil, fmt.Errorf("backup directory must be writable: %w", err)
	}

	s := &Store{
		catalog:  params.Catalog,
		live:     params.Live,
		dir:      dir,
		logger:   params.Logger.With().Str("backup_dir", dir).Logger(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) Dir() string {
	return s.dir
}

// CreateBackup copies the live database into a new artifact and records it.
func (s *Store) CreateBackup(ctx context.Context, typ Type, opts ...CreateOption) (*Record, error) {
	o := createOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With().Str("type", string(typ)).Logger()
	startTime := time.Now()
	logger.Info().Msg("starting backup")

	rec, err := s.createLocked(ctx, typ, logger)
	if err != nil {
		logger.Error().Err(err).Float64("seconds", time.Since(startTime).Seconds()).Msg("backup failed")
		s.observer.BackupFailed(typ, err)
		return nil, err
	}
	logger.Info().Object("backup", rec).Float64("seconds", time.Since(startTime).Seconds()).Msg("backup done")
	s.observer.BackupCreated(*rec)

	if o.cleanupMaxCount != 0 {
		if _, err := s.cleanupLocked(ctx, o.cleanupMaxCount); err != nil {
			// The backup itself is stored, cleanup runs again next time.
			logger.Error().Err(err).Msg("cleanup after backup failed")
		}
	}

	return rec, nil
}

func (s *Store) createLocked(ctx context.Context, typ Type, logger zerolog.Logger) (*Record, error) {
	livePath := s.live.Path()

	if cp, ok := s.live.(Checkpointer); ok {
		if err := cp.Checkpoint(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not checkpoint live database, copying main file as is")
		}
	}

	src, err := os.Open(livePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() {
		_ = src.Close()
	}()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnavailable, livePath)
	}

	createdAt := s.now().UTC().Truncate(time.Millisecond)
	tmp, err := fileutils.WriteTemp(ctx, s.dir, fileNamePrefix, src, artifactPerm)
	if err != nil {
		return nil, fmt.Errorf("%w: could not copy %s: %w", ErrBackupFailed, livePath, err)
	}
	defer func() {
		if err := tmp.Discard(); err != nil {
			logger.Error().Err(err).Msg("could not remove temporary backup file")
		}
	}()

	name, err := s.claimFileName(ctx, createdAt, tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	path := filepath.Join(s.dir, name)

	stored, err := os.Stat(path)
	if err != nil {
		s.removePartial(path, logger)
		return nil, fmt.Errorf("%w: could not stat %s: %w", ErrBackupFailed, path, err)
	}

	rec := &Record{
		ID:        s.newID(),
		FileName:  name,
		FilePath:  path,
		FileSize:  stored.Size(),
		Type:      typ,
		Hash:      tmp.Result.Hash,
		CreatedAt: createdAt,
	}
	if err := s.catalog.InsertBackup(ctx, rec.toCatalog()); err != nil {
		s.removePartial(path, logger)
		return nil, fmt.Errorf("%w: could not record backup: %w", ErrBackupFailed, err)
	}

	return rec, nil
}

func (s *Store) removePartial(path string, logger zerolog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error().Err(err).Str("path", path).Msg("could not remove partial backup file")
	}
}

// claimFileName places tmp under the first name embedding createdAt that is
// free in the catalog and on disk. A name held on disk by anyone else, another
// process included, is skipped and never replaced.
func (s *Store) claimFileName(ctx context.Context, createdAt time.Time, tmp *fileutils.TempFile) (string, error) {
	base := fileNamePrefix + createdAt.Format(fileNameLayout)
	for i := range maxNameAttempts {
		name := base + fileNameExt
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, fileNameExt)
		}

		taken, err := s.catalog.FileNameTaken(ctx, name)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		err = tmp.Claim(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("no free file name for %s", base)
}

// List returns every backup, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	backups, err := s.catalog.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list backups: %w", err)
	}

	records := make([]Record, 0, len(backups))
	for _, b := range backups {
		records = append(records, recordFromCatalog(b))
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	b, err := s.catalog.FindBackup(ctx, id)
	if err != nil {
		return nil, translateCatalogErr(err)
	}
	rec := recordFromCatalog(*b)
	return &rec, nil
}

// DeleteBackup removes the artifact and its record. If the artifact cannot be
// removed the record is kept.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.deleteLocked(ctx, id)
	return err
}

func (s *Store) deleteLocked(ctx context.Context, id string) (*Record, error) {
	var deleted *Record
	err := s.catalog.DeleteBackup(ctx, id, func(b *catalog.Backup) error {
		rec := recordFromCatalog(*b)
		deleted = &rec
		err := os.Remove(b.FilePath)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Object("backup", rec).Msg("backup file already missing, removing record")
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, translateCatalogErr(err)
	}

	s.logger.Info().Object("backup", deleted).Msg("deleted backup")
	s.observer.BackupDeleted(*deleted)
	return deleted, nil
}

type CleanupResult struct {
	Deleted    []Record
	FreedBytes int64
}

// Cleanup keeps the maxCount most recent backups and deletes the others.
func (s *Store) Cleanup(ctx context.Context, maxCount int) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cleanupLocked(ctx, maxCount)
}

func (s *Store) cleanupLocked(ctx context.Context, maxCount int) (CleanupResult, error) {
	res := CleanupResult{}

	records, err := s.List(ctx)
	if err != nil {
		return res, err
	}

	excess, err := retention.SelectForDeletion(records, maxCount, retentionKey)
	if err != nil {
		return res, err
	}
	if len(excess) == 0 {
		s.logger.Debug().Int("max_count", maxCount).Int("count", len(records)).Msg("no old backups to clean")
		return res, nil
	}

	s.logger.Info().Int("max_count", maxCount).Int("count", len(records)).Int("excess", len(excess)).Msg("cleaning old backups")

	var errs []error
	for _, rec := range excess {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		deleted, err := s.deleteLocked(ctx, rec.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.FileName, err))
			continue
		}
		res.Deleted = append(res.Deleted, *deleted)
		res.FreedBytes += deleted.FileSize
	}

	return res, errors.Join(errs...)
}

func translateCatalogErr(err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
