package catalog

import (
	"time"
)

// Backup is one catalogued backup artifact.
type Backup struct {
	ID         string `gorm:"primaryKey"`
	FileName   string `gorm:"uniqueIndex;not null"`
	FilePath   string `gorm:"not null"`
	FileSize   int64
	BackupType string `gorm:"index;not null"`
	Hash       int64
	CreatedAt  time.Time `gorm:"index"`
}

// Setting is a single key/value pair of the settings table.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// Models lists every table the catalog owns, in migration order.
func Models() []any {
	return []any{&Backup{}, &Setting{}}
}
