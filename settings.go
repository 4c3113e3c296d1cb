package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/catalog"
	"github.com/stupid-simple/dbbackup/settings"
)

func settingsGetCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	a, err := openApp(args.Settings.Get.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	if key := args.Settings.Get.Key; key != "" {
		return printSettingValue(ctx, os.Stdout, a.settings, key)
	}

	st, err := a.service(nil).Settings(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, st.Config)
}

// printSettingValue prints the raw stored value of key, which may be one
// the settings would reject.
func printSettingValue(ctx context.Context, out io.Writer, kv *catalog.Settings, key string) error {
	if !slices.Contains(settings.Keys, key) {
		return fmt.Errorf("%w: unknown key %q, expected one of %s", settings.ErrConfigInvalid, key, strings.Join(settings.Keys, ", "))
	}

	value, ok, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		value = settings.Default().Values()[key]
	}
	_, err = fmt.Fprintln(out, value)
	return err
}

// settingsSetCommand stores new settings. A running daemon applies them on
// its next start, or immediately when changed through its settings file or
// HTTP API.
func settingsSetCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	changes, err := parseSettingValues(args.Settings.Set.Values)
	if err != nil {
		return err
	}

	a, err := openApp(args.Settings.Set.Storage, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	values, err := a.settings.All(ctx)
	if err != nil {
		return err
	}
	for k, v := range changes {
		values[k] = v
	}

	cfg, err := settings.Parse(values)
	if err != nil {
		return err
	}

	st, err := a.service(nil).SaveSettings(ctx, cfg)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, st.Config)
}

// parseSettingValues parses key=value pairs naming settings keys.
func parseSettingValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", settings.ErrConfigInvalid, pair)
		}
		if !slices.Contains(settings.Keys, key) {
			return nil, fmt.Errorf("%w: unknown key %q, expected one of %s", settings.ErrConfigInvalid, key, strings.Join(settings.Keys, ", "))
		}
		values[key] = value
	}
	return values, nil
}
