package settings

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Settings table keys.
const (
	KeyEnabled     = "backup_enabled"
	KeyFrequency   = "backup_frequency"
	KeyTime        = "backup_time"
	KeyWeeklyDay   = "backup_weekly_day"
	KeyMonthlyDay  = "backup_monthly_day"
	KeyMaxCount    = "backup_max_count"
	KeyAutoCleanup = "backup_auto_cleanup"
)

// Keys lists every settings key owned by the scheduler.
var Keys = []string{
	KeyEnabled,
	KeyFrequency,
	KeyTime,
	KeyWeeklyDay,
	KeyMonthlyDay,
	KeyMaxCount,
	KeyAutoCleanup,
}

// Config is the automatic backup configuration.
type Config struct {
	Enabled     bool      `json:"enabled"`
	Frequency   Frequency `json:"frequency" validate:"oneof=daily weekly monthly"`
	Time        string    `json:"time" validate:"hhmm"` // HH:MM, local time
	WeeklyDay   int       `json:"weekly_day" validate:"min=0,max=6"`   // 0 is Sunday
	MonthlyDay  int       `json:"monthly_day" validate:"min=1,max=31"` // clamped to the month's last day
	MaxCount    int       `json:"max_count" validate:"min=1"`
	AutoCleanup bool      `json:"auto_cleanup"`
}

func Default() Config {
	return Config{
		Enabled:     false,
		Frequency:   Daily,
		Time:        "22:00",
		WeeklyDay:   0,
		MonthlyDay:  1,
		MaxCount:    30,
		AutoCleanup: true,
	}
}

// Clock returns the configured hour and minute. Config must be valid.
func (c Config) Clock() (hour, minute int) {
	t, err := time.Parse(timeLayout, c.Time)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

func (c Config) String() string {
	switch c.Frequency {
	case Weekly:
		return fmt.Sprintf("weekly on %s at %s", time.Weekday(c.WeeklyDay), c.Time)
	case Monthly:
		return fmt.Sprintf("monthly on day %d at %s", c.MonthlyDay, c.Time)
	default:
		return fmt.Sprintf("daily at %s", c.Time)
	}
}

func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("enabled", c.Enabled)
	e.Str("frequency", string(c.Frequency))
	e.Str("time", c.Time)
	switch c.Frequency {
	case Weekly:
		e.Int("weekly_day", c.WeeklyDay)
	case Monthly:
		e.Int("monthly_day", c.MonthlyDay)
	}
	e.Int("max_count", c.MaxCount)
	e.Bool("auto_cleanup", c.AutoCleanup)
}
