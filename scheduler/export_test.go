package scheduler

import (
	"github.com/robfig/cron/v3"

	"github.com/stupid-simple/dbbackup/settings"
)

func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}

// RestartWithSchedule replaces the schedule like Restart, with a custom
// schedule instead of the one derived from cfg.
func (s *Scheduler) RestartWithSchedule(cfg settings.Config, schedule cron.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(cfg, schedule)
}
