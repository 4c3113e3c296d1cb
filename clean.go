package main

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/backup"
)

func cleanCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.Clean.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	startTime := time.Now()
	logger.Info().Msg("starting cleaning old backups")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("cleaning cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("cleaning done")
		}
	}()

	var res backup.CleanupResult
	if args.Clean.MaxCount != 0 {
		res, err = a.store.Cleanup(ctx, args.Clean.MaxCount)
	} else {
		res, err = a.service(nil).Cleanup(ctx)
	}

	logger.Info().
		Int("files_deleted", len(res.Deleted)).
		Str("size_freed", units.HumanSize(float64(res.FreedBytes))).
		Msg("old backups removed")
	return err
}

func deleteCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.Delete.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	if err := a.service(nil).Delete(ctx, args.Delete.ID); err != nil {
		return err
	}

	fmt.Printf("deleted %s\n", args.Delete.ID)
	return nil
}
