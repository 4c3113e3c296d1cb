package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/settings"
)

// BackupJob performs one automatic backup with the configuration in effect.
type BackupJob interface {
	RunBackup(ctx context.Context, cfg settings.Config) error
}

type SchedulerParams struct {
	Job    BackupJob
	Logger zerolog.Logger
	// Location of the configured wall clock time, time.Local when nil.
	Location *time.Location
	// Now is used to report the next run, time.Now when nil.
	Now func() time.Time
}

func NewScheduler(params SchedulerParams) *Scheduler {
	loc := params.Location
	if loc == nil {
		loc = time.Local
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	cl := cronLogger{logger: params.Logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:    params.Job,
		logger: params.Logger,
		loc:    loc,
		now:    now,
		cfg:    settings.Default(),
		runCtx: context.Background(),
	}
}

// Scheduler runs the automatic backup job. It holds at most one scheduled
// entry: every Restart replaces the previous one.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	job      BackupJob
	logger   zerolog.Logger
	loc      *time.Location
	now      func() time.Time
	cfg      settings.Config
	schedule cron.Schedule
	entry    cron.EntryID
	runCtx   context.Context

	// generation identifies the entry in effect. Runs of a replaced entry
	// that were already dispatched check it and return without a backup.
	generation atomic.Uint64
}

// Start the scheduler in its own routine. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Msg("backup scheduler started")
}

// Stop the scheduler and wait for a running backup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("backup scheduler stopped")
}

// Restart replaces the schedule in effect with the one described by cfg.
// An invalid cfg is rejected and the previous schedule stays in effect.
func (s *Scheduler) Restart(cfg settings.Config) error {
	schedule, err := NewCalendarSchedule(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceLocked(cfg, schedule)
}

func (s *Scheduler) replaceLocked(cfg settings.Config, schedule cron.Schedule) error {
	if s.schedule != nil {
		s.cron.Remove(s.entry)
		s.schedule = nil
		s.entry = 0
	}
	gen := s.generation.Add(1)
	s.cfg = cfg

	if !cfg.Enabled {
		s.logger.Info().Object("config", cfg).Msg("automatic backups disabled")
		return nil
	}

	s.entry = s.cron.Schedule(schedule, &scheduledRun{scheduler: s, generation: gen, cfg: cfg})
	s.schedule = schedule

	s.logger.Info().
		Object("config", cfg).
		Str("schedule", cfg.String()).
		Time("next", schedule.Next(s.now().In(s.loc))).
		Msg("automatic backups scheduled")
	return nil
}

// Config returns the configuration in effect.
func (s *Scheduler) Config() settings.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Next returns the time of the next automatic backup, false when disabled.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return time.Time{}, false
	}
	return s.schedule.Next(s.now().In(s.loc)), true
}

// RunNow performs an automatic backup immediately with the configuration in
// effect, in the caller's routine.
func (s *Scheduler) RunNow(ctx context.Context) error {
	cfg := s.Config()
	if s.job == nil {
		return fmt.Errorf("no backup job configured")
	}
	return s.job.RunBackup(ctx, cfg)
}

type scheduledRun struct {
	scheduler  *Scheduler
	generation uint64
	cfg        settings.Config
}

func (r *scheduledRun) Run() {
	s := r.scheduler
	if s.generation.Load() != r.generation {
		s.logger.Debug().Uint64("generation", r.generation).Msg("skipping run of replaced schedule")
		return
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if s.job == nil {
		return
	}

	startTime := time.Now()
	s.logger.Info().Str("schedule", r.cfg.String()).Msg("starting scheduled backup")
	if err := s.job.RunBackup(ctx, r.cfg); err != nil {
		s.logger.Error().Err(err).Float64("seconds", time.Since(startTime).Seconds()).Msg("scheduled backup failed")
		return
	}
	s.logger.Info().Float64("seconds", time.Since(startTime).Seconds()).Msg("scheduled backup done")
}

type cronLogger struct {
	logger zerolog.Logger
}

// Info implements cron.Logger.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
