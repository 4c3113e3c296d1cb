package backup

import "time"

type StoreOption func(s *Store)

// WithClock replaces the clock used to timestamp new backups.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the generator of backup ids.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		s.newID = newID
	}
}

func WithObserver(o Observer) StoreOption {
	return func(s *Store) {
		s.observer = o
	}
}

type CreateOption func(o *createOptions)

type createOptions struct {
	cleanupMaxCount int
}

// WithCleanup applies retention with maxCount once the backup is stored.
func WithCleanup(maxCount int) CreateOption {
	return func(o *createOptions) {
		o.cleanupMaxCount = maxCount
	}
}
