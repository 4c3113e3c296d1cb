package backup

import "errors"

var (
	// ErrSourceUnavailable means the live database could not be opened or read.
	ErrSourceUnavailable = errors.New("live database unavailable")
	// ErrBackupFailed means writing the artifact or its catalog record failed.
	// No record and no artifact are left behind.
	ErrBackupFailed = errors.New("backup failed")
	// ErrNotFound means the backup id is not in the catalog.
	ErrNotFound = errors.New("backup not found")
	// ErrDeleteFailed means the artifact could not be removed. The record is kept.
	ErrDeleteFailed = errors.New("backup delete failed")
	// ErrRestoreFailed means the live database was not replaced and still holds
	// its previous content.
	ErrRestoreFailed = errors.New("restore failed")
	// ErrReinitFailed means the live database was replaced but a listener could
	// not reopen it.
	ErrReinitFailed = errors.New("restored database could not be reopened")
)
