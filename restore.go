package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// restoreCommand replaces the live database from this process. Applications
// holding the live database open must be stopped first, the daemon's HTTP API
// restores while the daemon keeps running.
func restoreCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.Restore.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	res, err := a.service(nil).Restore(ctx, args.Restore.ID)
	if err != nil {
		return err
	}

	fmt.Printf("restored %s from %s in %.2fs\n", res.LivePath, res.Backup.FileName, res.Duration.Seconds())
	return nil
}
