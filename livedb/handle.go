// Package livedb holds the application's connection to the live SQLite
// database and releases it around restores.
package livedb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stupid-simple/dbbackup/backup"
)

// ErrUnavailable is returned while the connection is released for a restore
// or after Close.
var ErrUnavailable = errors.New("live database unavailable")

type Opener func(path string) (*gorm.DB, error)

type HandleParams struct {
	Path   string
	Open   Opener
	Logger zerolog.Logger
}

var (
	_ backup.LiveDatabase    = (*Handle)(nil)
	_ backup.Checkpointer    = (*Handle)(nil)
	_ backup.RestoreListener = (*Handle)(nil)
)

// Handle is a reopenable connection to the live database.
type Handle struct {
	mu     sync.RWMutex
	path   string
	open   Opener
	cli    *gorm.DB
	closed bool
	logger zerolog.Logger
}

func Open(params HandleParams) (*Handle, error) {
	path, err := filepath.Abs(params.Path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve live database path: %w", err)
	}
	if params.Open == nil {
		return nil, errors.New("no database opener")
	}

	h := &Handle{
		path:   path,
		open:   params.Open,
		logger: params.Logger.With().Str("live", path).Logger(),
	}
	if h.cli, err = h.open(path); err != nil {
		return nil, fmt.Errorf("could not open live database: %w", err)
	}
	return h, nil
}

// Path implements backup.LiveDatabase.
func (h *Handle) Path() string {
	return h.path
}

// DB returns the current connection. Callers must not keep it across
// restores.
func (h *Handle) DB() (*gorm.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.cli == nil {
		return nil, ErrUnavailable
	}
	return h.cli, nil
}

// Checkpoint moves the content of the write-ahead log into the main file.
func (h *Handle) Checkpoint(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.cli == nil {
		return ErrUnavailable
	}
	return h.checkpoint(ctx)
}

func (h *Handle) checkpoint(ctx context.Context) error {
	if err := h.cli.WithContext(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		return fmt.Errorf("could not checkpoint live database: %w", err)
	}
	return nil
}

// BeforeRestore implements backup.RestoreListener.
func (h *Handle) BeforeRestore(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cli == nil {
		return ErrUnavailable
	}
	if err := h.checkpoint(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("releasing live database without checkpoint")
	}
	if err := h.closeLocked(); err != nil {
		return err
	}
	h.logger.Debug().Msg("live database released")
	return nil
}

// AfterRestore implements backup.RestoreListener.
func (h *Handle) AfterRestore(_ context.Context, ev backup.RestoreEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	if h.cli != nil {
		// Never released.
		return nil
	}

	cli, err := h.open(h.path)
	if err != nil {
		return fmt.Errorf("could not reopen live database: %w", err)
	}
	h.cli = cli
	h.logger.Info().Bool("restored", ev.Restored).Str("backup_id", ev.Backup.ID).Msg("live database reopened")
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.cli == nil {
		return nil
	}
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	sqlDB, err := h.cli.DB()
	if err != nil {
		return fmt.Errorf("could not access live database connection: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("could not close live database: %w", err)
	}
	h.cli = nil
	return nil
}
