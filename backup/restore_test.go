package backup_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/dbbackup/backup"
)

type recordingListener struct {
	calls     []string
	events    []backup.RestoreEvent
	beforeErr error
	afterErr  error
	// seenLive is the live file content observed when AfterRestore runs.
	seenLive []byte
}

func (l *recordingListener) BeforeRestore(context.Context) error {
	l.calls = append(l.calls, "before")
	return l.beforeErr
}

func (l *recordingListener) AfterRestore(_ context.Context, ev backup.RestoreEvent) error {
	l.calls = append(l.calls, "after")
	l.events = append(l.events, ev)
	l.seenLive, _ = os.ReadFile(ev.LivePath)
	return l.afterErr
}

func newRestorer(t *testing.T, store *backup.Store) *backup.Restorer {
	return backup.NewRestorer(store, zerolog.New(zerolog.NewTestWriter(t)))
}

func TestRestore_RoundTripToOtherLivePath(t *testing.T) {
	content := bytes.Repeat([]byte("page\x00\x01\x02"), 50_000)
	env := newTestEnv(t, content)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)

	otherLive := filepath.Join(t.TempDir(), "other.db")
	writeLive(t, otherLive, []byte("something else entirely"))
	otherStore := setupStore(t, liveFile{path: otherLive}, env.catalog, env.backupDir)

	res, err := newRestorer(t, otherStore).RestoreBackup(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, otherLive, res.LivePath)
	assert.Equal(t, rec.ID, res.Backup.ID)

	got, err := os.ReadFile(otherLive)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRestore_ReplacesLiveAndKeepsArtifact(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)

	writeLive(t, env.livePath, []byte("newer content written after the backup"))
	writeLive(t, env.livePath+"-wal", []byte("stale wal"))

	_, err = newRestorer(t, env.store).RestoreBackup(ctx, rec.ID)
	require.NoError(t, err)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, liveContent, live)
	assert.NoFileExists(t, env.livePath+"-wal")

	artifact, err := os.ReadFile(rec.FilePath)
	require.NoError(t, err)
	assert.Equal(t, liveContent, artifact)

	assert.Equal(t, []string{"app.db"}, dirEntries(t, filepath.Dir(env.livePath)))
}

func TestRestore_NotFound(t *testing.T) {
	env := newTestEnv(t, liveContent)

	_, err := newRestorer(t, env.store).RestoreBackup(context.Background(), "missing")
	assert.ErrorIs(t, err, backup.ErrNotFound)
}

func TestRestore_ArtifactMissing(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.FilePath))
	writeLive(t, env.livePath, []byte("current"))

	listener := &recordingListener{}
	restorer := newRestorer(t, env.store)
	restorer.Subscribe(listener)

	_, err = restorer.RestoreBackup(ctx, rec.ID)
	require.ErrorIs(t, err, backup.ErrRestoreFailed)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("current"), live)
	assert.Empty(t, listener.calls, "handles are not released for a missing artifact")
}

func TestRestore_ArtifactCorrupted(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rec.FilePath, []byte("tampered"), 0600))

	_, err = newRestorer(t, env.store).RestoreBackup(ctx, rec.ID)
	require.ErrorIs(t, err, backup.ErrRestoreFailed)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, liveContent, live)
}

var errInjected = errors.New("injected failure")

type failAfter struct {
	r     io.Reader
	limit int
	read  int
}

func (f *failAfter) Read(p []byte) (int, error) {
	if f.read >= f.limit {
		return 0, errInjected
	}
	if len(p) > f.limit-f.read {
		p = p[:f.limit-f.read]
	}
	n, err := f.r.Read(p)
	f.read += n
	return n, err
}

func TestRestore_FailureMidCopyKeepsLive(t *testing.T) {
	content := bytes.Repeat([]byte("backup bytes "), 10_000)
	env := newTestEnv(t, content)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)

	before := []byte("live content that must survive a failed restore")
	writeLive(t, env.livePath, before)

	backup.SetOpenArtifact(t, func(path string) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{&failAfter{r: f, limit: len(content) / 2}, f}, nil
	})

	listener := &recordingListener{}
	restorer := newRestorer(t, env.store)
	restorer.Subscribe(listener)

	_, err = restorer.RestoreBackup(ctx, rec.ID)
	require.ErrorIs(t, err, backup.ErrRestoreFailed)
	require.ErrorIs(t, err, errInjected)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, before, live)
	assert.Equal(t, []string{"app.db"}, dirEntries(t, filepath.Dir(env.livePath)), "no temporary file left behind")

	assert.Equal(t, []string{"before", "after"}, listener.calls)
	require.Len(t, listener.events, 1)
	assert.False(t, listener.events[0].Restored)
}

func TestRestore_NotifiesListeners(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)
	writeLive(t, env.livePath, []byte("changed"))

	first := &recordingListener{}
	second := &recordingListener{}
	restorer := newRestorer(t, env.store)
	restorer.Subscribe(first)
	restorer.Subscribe(second)

	_, err = restorer.RestoreBackup(ctx, rec.ID)
	require.NoError(t, err)

	for _, l := range []*recordingListener{first, second} {
		assert.Equal(t, []string{"before", "after"}, l.calls)
		require.Len(t, l.events, 1)
		assert.True(t, l.events[0].Restored)
		assert.Equal(t, rec.ID, l.events[0].Backup.ID)
		assert.Equal(t, env.livePath, l.events[0].LivePath)
		assert.Equal(t, liveContent, l.seenLive, "listener sees restored content")
	}
}

func TestRestore_ReleaseFailureAborts(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)
	writeLive(t, env.livePath, []byte("changed"))

	ok := &recordingListener{}
	busy := &recordingListener{beforeErr: errors.New("database busy")}
	restorer := newRestorer(t, env.store)
	restorer.Subscribe(ok)
	restorer.Subscribe(busy)

	_, err = restorer.RestoreBackup(ctx, rec.ID)
	require.ErrorIs(t, err, backup.ErrRestoreFailed)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), live)

	assert.Equal(t, []string{"before", "after"}, ok.calls, "released handles are reopened")
	assert.Equal(t, []string{"before"}, busy.calls)
}

func TestRestore_ReopenFailure(t *testing.T) {
	env := newTestEnv(t, liveContent)
	ctx := context.Background()

	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)
	writeLive(t, env.livePath, []byte("changed"))

	restorer := newRestorer(t, env.store)
	restorer.Subscribe(&recordingListener{afterErr: errors.New("cannot open")})

	res, err := restorer.RestoreBackup(ctx, rec.ID)
	require.ErrorIs(t, err, backup.ErrReinitFailed)
	assert.NotErrorIs(t, err, backup.ErrRestoreFailed)
	require.NotNil(t, res)

	live, err := os.ReadFile(env.livePath)
	require.NoError(t, err)
	assert.Equal(t, liveContent, live)
}

func TestRestore_Observer(t *testing.T) {
	obs := new(mockObserver)
	env := newTestEnv(t, liveContent, backup.WithObserver(obs))
	ctx := context.Background()

	obs.On("BackupCreated", backup.Manual).Once()
	rec, err := env.store.CreateBackup(ctx, backup.Manual)
	require.NoError(t, err)

	obs.On("RestoreFinished", rec.ID, true).Once()
	_, err = newRestorer(t, env.store).RestoreBackup(ctx, rec.ID)
	require.NoError(t, err)

	obs.AssertExpectations(t)
}
