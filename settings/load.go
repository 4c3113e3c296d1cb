package settings

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// KV is the key/value persistence the configuration lives in.
type KV interface {
	All(ctx context.Context) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

// Load reads the configuration from kv. Missing keys take their default value,
// malformed or out of range values are rejected.
func Load(ctx context.Context, kv KV) (Config, error) {
	values, err := kv.All(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("could not read settings: %w", err)
	}
	return Parse(values)
}

// Save validates cfg and writes every key to kv.
func Save(ctx context.Context, kv KV, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := kv.SetMany(ctx, cfg.Values()); err != nil {
		return fmt.Errorf("could not write settings: %w", err)
	}
	return nil
}

// Parse builds a Config from raw settings values.
func Parse(values map[string]string) (Config, error) {
	cfg := Default()
	var problems []string

	parseBool := func(key string, dst *bool) {
		raw, ok := values[key]
		if !ok {
			return
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q is not a boolean", key, raw))
			return
		}
		*dst = v
	}
	parseInt := func(key string, dst *int) {
		raw, ok := values[key]
		if !ok {
			return
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q is not an integer", key, raw))
			return
		}
		*dst = v
	}

	parseBool(KeyEnabled, &cfg.Enabled)
	parseBool(KeyAutoCleanup, &cfg.AutoCleanup)
	parseInt(KeyWeeklyDay, &cfg.WeeklyDay)
	parseInt(KeyMonthlyDay, &cfg.MonthlyDay)
	parseInt(KeyMaxCount, &cfg.MaxCount)
	if raw, ok := values[KeyFrequency]; ok {
		cfg.Frequency = Frequency(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw, ok := values[KeyTime]; ok {
		cfg.Time = strings.TrimSpace(raw)
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(problems, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Values is the settings table representation of c.
func (c Config) Values() map[string]string {
	return map[string]string{
		KeyEnabled:     strconv.FormatBool(c.Enabled),
		KeyFrequency:   string(c.Frequency),
		KeyTime:        c.Time,
		KeyWeeklyDay:   strconv.Itoa(c.WeeklyDay),
		KeyMonthlyDay:  strconv.Itoa(c.MonthlyDay),
		KeyMaxCount:    strconv.Itoa(c.MaxCount),
		KeyAutoCleanup: strconv.FormatBool(c.AutoCleanup),
	}
}

// LoadFromFile reads a JSON configuration file. Fields absent from the file
// keep their default value.
func LoadFromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
