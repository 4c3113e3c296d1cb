package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stupid-simple/dbbackup/backup"
	"github.com/stupid-simple/dbbackup/catalog"
	"github.com/stupid-simple/dbbackup/fileutils"
	"github.com/stupid-simple/dbbackup/livedb"
	"github.com/stupid-simple/dbbackup/service"
)

// app holds the components shared by every command.
type app struct {
	catalog  *catalog.Database
	settings *catalog.Settings
	live     *livedb.Handle
	store    *backup.Store
	restorer *backup.Restorer
	logger   zerolog.Logger
}

func openApp(flags storageFlags, logger zerolog.Logger, opts ...backup.StoreOption) (*app, error) {
	if !fileutils.Exists(flags.Live) {
		return nil, fmt.Errorf("%w: %s does not exist", backup.ErrSourceUnavailable, flags.Live)
	}

	db, err := openCatalog(flags.Catalog, logger)
	if err != nil {
		return nil, err
	}

	live, err := livedb.Open(livedb.HandleParams{
		Path: flags.Live,
		Open: func(path string) (*gorm.DB, error) {
			return newSQLite(path, logger.With().Str("db", "live").Logger())
		},
		Logger: logger,
	})
	if err != nil {
		_ = closeSQLite(db.Cli)
		return nil, err
	}

	store, err := backup.NewStore(backup.StoreParams{
		Catalog: db,
		Live:    live,
		Dir:     flags.Dir,
		Logger:  logger,
	}, opts...)
	if err != nil {
		_ = live.Close()
		_ = closeSQLite(db.Cli)
		return nil, err
	}

	restorer := backup.NewRestorer(store, logger)
	restorer.Subscribe(live)

	return &app{
		catalog:  db,
		settings: &catalog.Settings{DB: db},
		live:     live,
		store:    store,
		restorer: restorer,
		logger:   logger,
	}, nil
}

func (a *app) service(sched service.Scheduler) *service.Service {
	return service.New(service.Params{
		Store:     a.store,
		Restorer:  a.restorer,
		Settings:  a.settings,
		Scheduler: sched,
		Logger:    a.logger,
	})
}

func (a *app) Close() error {
	return errors.Join(a.live.Close(), closeSQLite(a.catalog.Cli))
}
