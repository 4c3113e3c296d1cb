package catalog

import (
	"context"
	"errors"
	"maps"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settings is the key/value settings table.
type Settings struct {
	DB *Database
}

func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	s.DB.Lock.Lock()
	defer s.DB.Lock.Unlock()

	setting := Setting{}
	err := s.DB.Cli.WithContext(ctx).Where("key = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

// SetMany writes all values in a single transaction.
func (s *Settings) SetMany(ctx context.Context, values map[string]string) error {
	s.DB.Lock.Lock()
	defer s.DB.Lock.Unlock()

	return s.DB.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range slices.Sorted(maps.Keys(values)) {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&Setting{Key: key, Value: values[key]}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Settings) All(ctx context.Context) (map[string]string, error) {
	s.DB.Lock.Lock()
	defer s.DB.Lock.Unlock()

	rows := []Setting{}
	if err := s.DB.Cli.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
