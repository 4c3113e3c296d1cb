package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stupid-simple/dbbackup/settings"
)

// calendarSchedule fires at a wall clock time every day, every week on a
// weekday or every month on a day of the month. Days past the end of a short
// month fire on its last day.
type calendarSchedule struct {
	frequency settings.Frequency
	hour      int
	minute    int
	weekday   time.Weekday
	monthDay  int
}

var _ cron.Schedule = calendarSchedule{}

// NewCalendarSchedule returns the schedule described by cfg.
func NewCalendarSchedule(cfg settings.Config) (cron.Schedule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hour, minute := cfg.Clock()
	return calendarSchedule{
		frequency: cfg.Frequency,
		hour:      hour,
		minute:    minute,
		weekday:   time.Weekday(cfg.WeeklyDay),
		monthDay:  cfg.MonthlyDay,
	}, nil
}

// Next returns the first fire time strictly after t, in t's location.
func (s calendarSchedule) Next(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()

	switch s.frequency {
	case settings.Weekly:
		delta := (int(s.weekday) - int(t.Weekday()) + 7) % 7
		next := time.Date(y, m, d+delta, s.hour, s.minute, 0, 0, loc)
		if !next.After(t) {
			next = time.Date(y, m, d+delta+7, s.hour, s.minute, 0, 0, loc)
		}
		return next

	case settings.Monthly:
		next := s.inMonth(y, m, loc)
		if !next.After(t) {
			next = s.inMonth(y, m+1, loc)
		}
		return next

	default:
		next := time.Date(y, m, d, s.hour, s.minute, 0, 0, loc)
		if !next.After(t) {
			next = time.Date(y, m, d+1, s.hour, s.minute, 0, 0, loc)
		}
		return next
	}
}

func (s calendarSchedule) inMonth(y int, m time.Month, loc *time.Location) time.Time {
	// Normalize month overflow before computing its length.
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	y, m = first.Year(), first.Month()
	day := min(s.monthDay, daysIn(y, m, loc))
	return time.Date(y, m, day, s.hour, s.minute, 0, 0, loc)
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
