// Package service exposes the backup operations to the CLI and HTTP layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/backup"
	"github.com/stupid-simple/dbbackup/retention"
	"github.com/stupid-simple/dbbackup/settings"
)

var ErrMissingID = errors.New("backup id is required")

// Scheduler applies a new configuration to the automatic backups.
type Scheduler interface {
	Restart(cfg settings.Config) error
	Next() (time.Time, bool)
}

type Params struct {
	Store    *backup.Store
	Restorer *backup.Restorer
	Settings settings.KV
	// Scheduler is nil when no daemon runs in this process. Saved settings
	// then take effect on the next daemon start.
	Scheduler Scheduler
	Logger    zerolog.Logger
}

type Service struct {
	store     *backup.Store
	restorer  *backup.Restorer
	kv        settings.KV
	scheduler Scheduler
	logger    zerolog.Logger

	settingsMu sync.Mutex
}

func New(params Params) *Service {
	return &Service{
		store:     params.Store,
		restorer:  params.Restorer,
		kv:        params.Settings,
		scheduler: params.Scheduler,
		logger:    params.Logger,
	}
}

// Status is the stored configuration and the next automatic backup.
type Status struct {
	Config  settings.Config `json:"config"`
	NextRun *time.Time      `json:"next_run,omitempty"`
}

func (s *Service) List(ctx context.Context) ([]backup.Record, error) {
	return s.store.List(ctx)
}

// Create makes a backup of type typ. Unknown types are manual backups.
// Automatic backups apply retention when the configuration asks for it.
func (s *Service) Create(ctx context.Context, typ string) (*backup.Record, error) {
	t := backup.ParseType(typ)
	if t != backup.Auto {
		return s.store.CreateBackup(ctx, t)
	}
	return s.store.CreateBackup(ctx, t, AutoOptions(s.config(ctx))...)
}

func (s *Service) Get(ctx context.Context, id string) (*backup.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingID
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Restore(ctx context.Context, id string) (*backup.RestoreResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingID
	}
	return s.restorer.RestoreBackup(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	return s.store.DeleteBackup(ctx, id)
}

// Cleanup applies retention with the configured maximum count.
func (s *Service) Cleanup(ctx context.Context) (backup.CleanupResult, error) {
	return s.store.Cleanup(ctx, s.config(ctx).MaxCount)
}

func (s *Service) Settings(ctx context.Context) (*Status, error) {
	cfg, err := settings.Load(ctx, s.kv)
	if err != nil {
		return nil, err
	}
	return s.status(cfg), nil
}

// SaveSettings validates and stores cfg, then reschedules the automatic
// backups. It returns once the new schedule is in effect.
func (s *Service) SaveSettings(ctx context.Context, cfg settings.Config) (*Status, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	if err := settings.Save(ctx, s.kv, cfg); err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Restart(cfg); err != nil {
			return nil, fmt.Errorf("settings saved but not applied: %w", err)
		}
	}
	s.logger.Info().Object("config", cfg).Msg("backup settings saved")
	return s.status(cfg), nil
}

func (s *Service) status(cfg settings.Config) *Status {
	st := &Status{Config: cfg}
	if s.scheduler != nil {
		if next, ok := s.scheduler.Next(); ok {
			st.NextRun = &next
		}
	}
	return st
}

// config returns the stored configuration, or the defaults if it cannot be
// read.
func (s *Service) config(ctx context.Context) settings.Config {
	cfg, err := settings.Load(ctx, s.kv)
	if err != nil {
		s.logger.Warn().Err(err).Msg("using default backup settings")
		return settings.Default()
	}
	return cfg
}

// AutoOptions are the options of an automatic backup under cfg.
func AutoOptions(cfg settings.Config) []backup.CreateOption {
	if !cfg.AutoCleanup {
		return nil
	}
	return []backup.CreateOption{backup.WithCleanup(cfg.MaxCount)}
}

// AutoBackupJob is the scheduled automatic backup.
type AutoBackupJob struct {
	Store *backup.Store
}

func (j AutoBackupJob) RunBackup(ctx context.Context, cfg settings.Config) error {
	_, err := j.Store.CreateBackup(ctx, backup.Auto, AutoOptions(cfg)...)
	return err
}

// Message returns text suitable to show to the user for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingID):
		return "A backup id is required."
	case errors.Is(err, backup.ErrNotFound):
		return "The backup does not exist."
	case errors.Is(err, backup.ErrSourceUnavailable):
		return "The database file could not be read. No backup was created."
	case errors.Is(err, backup.ErrBackupFailed):
		return "The backup could not be written. No backup was created."
	case errors.Is(err, backup.ErrDeleteFailed):
		return "The backup file could not be removed. The backup was kept."
	case errors.Is(err, backup.ErrReinitFailed):
		return "The backup was restored but the database could not be reopened. Restart the application."
	case errors.Is(err, backup.ErrRestoreFailed):
		return "The backup could not be restored. The database is unchanged."
	case errors.Is(err, settings.ErrConfigInvalid):
		return "The backup settings are invalid: " + detail(err, settings.ErrConfigInvalid)
	case errors.Is(err, retention.ErrInvalidMaxCount):
		return "The maximum number of backups must be at least 1."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The operation was cancelled."
	default:
		return "An unexpected error occurred."
	}
}

// detail is the part of err's text after the sentinel's.
func detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}
