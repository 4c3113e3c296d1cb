package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/backup"
	"github.com/stupid-simple/dbbackup/fileutils"
	"github.com/stupid-simple/dbbackup/httpapi"
	"github.com/stupid-simple/dbbackup/metrics"
	"github.com/stupid-simple/dbbackup/scheduler"
	"github.com/stupid-simple/dbbackup/service"
	"github.com/stupid-simple/dbbackup/settings"
)

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(args.Daemon.Storage, logger, backup.WithObserver(metrics.New(reg)))
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	sched := scheduler.NewScheduler(scheduler.SchedulerParams{
		Job:    service.AutoBackupJob{Store: a.store},
		Logger: logger.With().Str("component", "scheduler").Logger(),
	})
	svc := a.service(sched)

	if err := applyInitialSettings(ctx, args.Daemon.Config, sched, svc, logger); err != nil {
		return err
	}

	if args.Daemon.Config != "" {
		startConfigFileWatcher(ctx, args.Daemon.Config, args.Daemon.WatchInterval, logger, func(cfg settings.Config) {
			if _, err := svc.SaveSettings(ctx, cfg); err != nil {
				logger.Error().Err(err).Msg("could not apply settings file")
			}
		})
	}

	sched.Start(ctx)
	defer sched.Stop()

	if args.Daemon.RunNow {
		if err := sched.RunNow(ctx); err != nil {
			logger.Error().Err(err).Msg("start-up backup failed")
		}
	}

	if args.Daemon.Listen == "" {
		<-ctx.Done()
		return nil
	}

	return serveHTTP(ctx, args.Daemon.Listen, httpapi.NewRouter(httpapi.RouterParams{
		Service:   svc,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		RateLimit: args.Daemon.RateLimit,
		Logger:    logger.With().Str("component", "http").Logger(),
	}), logger)
}

// applyInitialSettings schedules the automatic backups at start. A settings
// file takes precedence over the stored settings and is stored.
func applyInitialSettings(ctx context.Context, cfgPath string, sched *scheduler.Scheduler, svc *service.Service, logger zerolog.Logger) error {
	if cfgPath != "" {
		cfg, err := settings.LoadFromFile(cfgPath)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		_, err = svc.SaveSettings(ctx, cfg)
		return err
	}

	cfg := settings.Default()
	st, err := svc.Settings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("stored settings are invalid, using defaults")
	} else {
		cfg = st.Config
	}
	return sched.Restart(cfg)
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, interval time.Duration, logger zerolog.Logger, onChanged func(cfg settings.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, interval, func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher:
				if !ok {
					return
				}
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := settings.LoadFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http api stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not stop http api: %w", err)
	}
	return nil
}
