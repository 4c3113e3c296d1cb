package backup

// Observer is notified of the outcome of every store operation.
type Observer interface {
	BackupCreated(r Record)
	BackupFailed(t Type, err error)
	BackupDeleted(r Record)
	RestoreFinished(r Record, err error)
}

type nopObserver struct{}

func (nopObserver) BackupCreated(Record)          {}
func (nopObserver) BackupFailed(Type, error)      {}
func (nopObserver) BackupDeleted(Record)          {}
func (nopObserver) RestoreFinished(Record, error) {}
