package backup

import (
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/catalog"
	"github.com/stupid-simple/dbbackup/retention"
)

type Type string

const (
	Manual Type = "manual"
	Auto   Type = "auto"
)

// ParseType returns the backup type named by s, Manual when s names none.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Auto:
		return Auto
	default:
		return Manual
	}
}

type Record struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	FileSize  int64     `json:"file_size"`
	Type      Type      `json:"backup_type"`
	Hash      uint64    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", r.ID)
	e.Str("file", r.FileName)
	e.Str("type", string(r.Type))
	e.Int64("size", r.FileSize)
	e.Str("human_size", units.HumanSize(float64(r.FileSize)))
	e.Time("created_at", r.CreatedAt)
}

func recordFromCatalog(b catalog.Backup) Record {
	return Record{
		ID:        b.ID,
		FileName:  b.FileName,
		FilePath:  b.FilePath,
		FileSize:  b.FileSize,
		Type:      Type(b.BackupType),
		Hash:      uint64(b.Hash),
		CreatedAt: b.CreatedAt.UTC(),
	}
}

func (r Record) toCatalog() *catalog.Backup {
	return &catalog.Backup{
		ID:         r.ID,
		FileName:   r.FileName,
		FilePath:   r.FilePath,
		FileSize:   r.FileSize,
		BackupType: string(r.Type),
		Hash:       int64(r.Hash),
		CreatedAt:  r.CreatedAt,
	}
}

func retentionKey(r Record) retention.Key {
	return retention.Key{CreatedAt: r.CreatedAt, ID: r.ID}
}
