package retention

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrInvalidMaxCount = errors.New("max count must be at least 1")

// Key is what records are ordered by. CreatedAt decides, ID breaks ties.
type Key struct {
	CreatedAt time.Time
	ID        string
}

// SelectForDeletion returns the records that exceed maxCount, oldest last.
// The maxCount most recent records are kept regardless of their type.
// records is not modified.
func SelectForDeletion[T any](records []T, maxCount int, key func(T) Key) ([]T, error) {
	if maxCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxCount, maxCount)
	}
	if len(records) <= maxCount {
		return nil, nil
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return compareNewestFirst(key(a), key(b))
	})

	return sorted[maxCount:], nil
}

func compareNewestFirst(a, b Key) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}
