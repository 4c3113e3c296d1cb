package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/fileutils"
)

// sidecarSuffixes are the SQLite files tied to the content of the main file.
var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// openArtifact opens a backup artifact for reading.
var openArtifact = func(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

type RestoreEvent struct {
	Backup   Record
	LivePath string
	// Restored is false when the live database was left untouched.
	Restored bool
}

// RestoreListener is implemented by holders of live database handles.
// BeforeRestore must release every handle on the live file, AfterRestore
// reopens them.
type RestoreListener interface {
	BeforeRestore(ctx context.Context) error
	AfterRestore(ctx context.Context, ev RestoreEvent) error
}

type RestoreResult struct {
	Backup   Record
	LivePath string
	Duration time.Duration
}

// Restorer replaces the live database with the content of a backup.
type Restorer struct {
	store  *Store
	logger zerolog.Logger

	listenersMu sync.Mutex
	listeners   []RestoreListener
}

func NewRestorer(store *Store, logger zerolog.Logger) *Restorer {
	return &Restorer{
		store:  store,
		logger: logger,
	}
}

func (r *Restorer) Subscribe(l RestoreListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RestoreBackup copies the artifact of backup id over the live database.
// The live file is replaced atomically: on error it holds its previous content.
func (r *Restorer) RestoreBackup(ctx context.Context, id string) (*RestoreResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	startTime := time.Now()
	livePath := r.store.live.Path()
	logger := r.logger.With().Str("backup_id", id).Str("live", livePath).Logger()
	logger.Info().Msg("starting restore")

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("restore failed")
		return nil, err
	}

	err = r.restoreLocked(ctx, *rec, livePath, logger)
	r.store.observer.RestoreFinished(*rec, err)
	if err != nil && !errors.Is(err, ErrReinitFailed) {
		logger.Error().Err(err).Float64("seconds", time.Since(startTime).Seconds()).Msg("restore failed")
		return nil, err
	}

	res := &RestoreResult{
		Backup:   *rec,
		LivePath: livePath,
		Duration: time.Since(startTime),
	}
	logger.Info().Object("backup", rec).Float64("seconds", res.Duration.Seconds()).Msg("restore done")
	return res, err
}

func (r *Restorer) restoreLocked(ctx context.Context, rec Record, livePath string, logger zerolog.Logger) error {
	hash, err := fileutils.ComputeFileHash(rec.FilePath)
	if err != nil {
		return fmt.Errorf("%w: could not read backup file: %w", ErrRestoreFailed, err)
	}
	if hash != rec.Hash {
		return fmt.Errorf("%w: backup file %s is corrupted, checksum %x expected %x", ErrRestoreFailed, rec.FileName, hash, rec.Hash)
	}

	src, err := openArtifact(rec.FilePath)
	if err != nil {
		return fmt.Errorf("%w: could not open backup file: %w", ErrRestoreFailed, err)
	}
	defer func() {
		_ = src.Close()
	}()

	perm := fs.FileMode(artifactPerm)
	if info, err := os.Stat(livePath); err == nil {
		perm = info.Mode().Perm()
	}

	listeners := r.snapshotListeners()
	ev := RestoreEvent{Backup: rec, LivePath: livePath}

	released := 0
	for _, l := range listeners {
		if err := l.BeforeRestore(ctx); err != nil {
			r.notifyAfter(ctx, listeners[:released], ev, logger)
			return fmt.Errorf("%w: could not release live database: %w", ErrRestoreFailed, err)
		}
		released++
	}

	if _, err := fileutils.WriteFileAtomic(ctx, livePath, src, perm); err != nil {
		r.notifyAfter(ctx, listeners, ev, logger)
		return fmt.Errorf("%w: could not replace live database: %w", ErrRestoreFailed, err)
	}

	for _, suffix := range sidecarSuffixes {
		if err := os.Remove(livePath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", livePath+suffix).Msg("could not remove stale database file")
		}
	}

	ev.Restored = true
	if errs := r.notifyAfter(ctx, listeners, ev, logger); len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrReinitFailed, errors.Join(errs...))
	}
	return nil
}

func (r *Restorer) snapshotListeners() []RestoreListener {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	out := make([]RestoreListener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

func (r *Restorer) notifyAfter(ctx context.Context, listeners []RestoreListener, ev RestoreEvent, logger zerolog.Logger) []error {
	var errs []error
	for _, l := range listeners {
		if err := l.AfterRestore(ctx, ev); err != nil {
			logger.Error().Err(err).Bool("restored", ev.Restored).Msg("restore listener failed")
			errs = append(errs, err)
		}
	}
	return errs
}
