package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/backup"
)

func backupCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.Backup.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	rec, err := a.service(nil).Create(ctx, args.Backup.Type)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\t%s\n", rec.ID, rec.FilePath, units.HumanSize(float64(rec.FileSize)))
	return nil
}

func listCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.List.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	records, err := a.service(nil).List(ctx)
	if err != nil {
		return err
	}

	if args.List.JSON {
		return printJSON(os.Stdout, records)
	}
	return printRecords(os.Stdout, records)
}

func printRecords(out io.Writer, records []backup.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTYPE\tSIZE\tFILE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Type,
			units.HumanSize(float64(r.FileSize)),
			r.FileName,
		)
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeApp(a *app, logger zerolog.Logger) {
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("could not close databases")
	}
}
