package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("backup not found in catalog")

type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
}

// Migrate creates or updates the catalog tables.
func Migrate(cli *gorm.DB) error {
	if err := cli.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("could not migrate catalog: %w", err)
	}
	return nil
}

func (d *Database) InsertBackup(ctx context.Context, b *Backup) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	d.Logger.Debug().Str("id", b.ID).Str("file", b.FileName).Msg("insert backup")

	return d.Cli.WithContext(ctx).Create(b).Error
}

// ListBackups returns every backup, newest first.
func (d *Database) ListBackups(ctx context.Context) ([]Backup, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	backups := []Backup{}
	err := d.Cli.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&backups).Error
	if err != nil {
		return nil, err
	}
	return backups, nil
}

func (d *Database) FindBackup(ctx context.Context, id string) (*Backup, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	return findBackup(d.Cli.WithContext(ctx), id)
}

// FileNameTaken reports whether a backup already uses name.
func (d *Database) FileNameTaken(ctx context.Context, name string) (bool, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var count int64
	err := d.Cli.WithContext(ctx).Model(&Backup{}).Where("file_name = ?", name).Count(&count).Error
	return count > 0, err
}

// DeleteBackup removes the backup row and calls removeFile within the same
// transaction. If removeFile fails the row is kept. Cancelling ctx stops the
// deletion only up to the point removeFile is called; once the file is gone
// the row delete is always committed.
func (d *Database) DeleteBackup(ctx context.Context, id string, removeFile func(b *Backup) error) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return d.Cli.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		b, err := findBackup(tx, id)
		if err != nil {
			return err
		}

		res := tx.Where("id = ?", id).Delete(&Backup{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete backup record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := removeFile(b); err != nil {
			return err
		}

		d.Logger.Debug().Str("id", id).Str("file", b.FileName).Msg("backup record deleted")
		return nil
	})
}

func findBackup(tx *gorm.DB, id string) (*Backup, error) {
	b := &Backup{}
	err := tx.Where("id = ?", id).Take(b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
