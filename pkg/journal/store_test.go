package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itohio/govac/pkg/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(export.Entry{
		Session:    1,
		Path:       "/export/g_20261018_120000_c1.csv",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Bytes:      2534,
		Success:    true,
		Status:     "Saved g_20261018_120000_c1.csv (2.5 kB)",
	}))
	require.NoError(t, s.RecordContext(ctx, export.Entry{
		Session:    2,
		Path:       "/export/g_20261018_120500_c2.csv",
		StartedAt:  start.Add(5 * time.Minute),
		FinishedAt: start.Add(5 * time.Minute),
		Status:     "Storage unavailable: storage device not available",
	}))

	entries, err := s.Entries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint32(2), entries[0].Session, "most recent first")
	assert.False(t, entries[0].Success)

	e := entries[1]
	assert.Equal(t, uint32(1), e.Session)
	assert.Equal(t, "/export/g_20261018_120000_c1.csv", e.Path)
	assert.True(t, e.StartedAt.Equal(start))
	assert.True(t, e.FinishedAt.Equal(start.Add(time.Second)))
	assert.Equal(t, int64(2534), e.Bytes)
	assert.True(t, e.Success)
	assert.Equal(t, "Saved g_20261018_120000_c1.csv (2.5 kB)", e.Status)

	entries, err = s.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_LastSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), last)

	for _, id := range []uint32{3, 7, 5} {
		require.NoError(t, s.Record(export.Entry{Session: id, Path: "/x.csv", StartedAt: time.Now(), FinishedAt: time.Now()}))
	}

	last, err = s.LastSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), last)
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s := New(path)
	require.NoError(t, s.Record(export.Entry{Session: 4, Path: "/a.csv", StartedAt: time.Now(), FinishedAt: time.Now(), Success: true}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	reopened := New(path)
	defer reopened.Close()

	last, err := reopened.LastSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(4), last)
}

func TestStore_UseAfterClose(t *testing.T) {
	tests := []struct {
		name string
		open bool
	}{
		{"opened", true},
		{"never opened", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(filepath.Join(t.TempDir(), "journal.db"))
			ctx := context.Background()
			if tt.open {
				require.NoError(t, s.Record(export.Entry{Session: 1, Path: "/a.csv"}))
			}
			require.NoError(t, s.Close())

			assert.ErrorIs(t, s.Record(export.Entry{Session: 2}), ErrClosed)
			assert.ErrorIs(t, s.RecordContext(ctx, export.Entry{Session: 2}), ErrClosed)
			_, err := s.Entries(ctx, 10)
			assert.ErrorIs(t, err, ErrClosed)
			_, err = s.LastSession(ctx)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestStore_BadPath(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	defer s.Close()

	err := s.Record(export.Entry{Session: 1})
	assert.Error(t, err)
}

func TestStore_JournalsWorkerSessions(t *testing.T) {
	s := newTestStore(t)

	q := export.NewQueue(export.DefaultQueueDepth)
	sess := export.NewSession(0)
	w := export.NewWorker(q, sess, &export.DirStorage{Root: t.TempDir()}, export.WithJournal(s))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	id, ok := sess.Begin()
	require.True(t, ok)
	require.NoError(t, q.Send(export.Open{Session: id, Path: "/export/j.csv"}, time.Second))
	require.NoError(t, q.Send(export.Data{Session: id, Payload: []byte("0,1.00,2.00\n")}, time.Second))
	require.NoError(t, q.Send(export.Close{Session: id}, time.Second))

	require.Eventually(t, func() bool { return !sess.Busy() }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	entries, err := s.Entries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "/export/j.csv", entries[0].Path)
	assert.Equal(t, int64(len(export.Header)+12), entries[0].Bytes)
}
