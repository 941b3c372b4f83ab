package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile holds its buffer in a named field so every write, including
// io.WriteString, goes through Write.
type memFile struct {
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.buf.Write(p)
}

func (f *memFile) String() string {
	return f.buf.String()
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

type memStorage struct {
	mu        sync.Mutex
	files     map[string]*memFile
	mountErr  error
	createErr error
	writeErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string]*memFile)}
}

func (s *memStorage) Mount() error {
	return s.mountErr
}

func (s *memStorage) Create(name string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	f := &memFile{writeErr: s.writeErr}
	s.files[name] = f
	return f, nil
}

func (s *memStorage) file(name string) *memFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[name]
}

type memJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *memJournal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) all() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

func newTestWorker(storage Storage) (*Worker, *Session, *memJournal) {
	s := NewSession(0)
	j := &memJournal{}
	w := NewWorker(NewQueue(DefaultQueueDepth), s, storage,
		WithJournal(j),
		WithClock(func() time.Time { return testTime }))
	return w, s, j
}

const testPath = "/export/g_20261018_120000_c1.csv"

func TestWorker_WritesSession(t *testing.T) {
	storage := newMemStorage()
	w, s, j := newTestWorker(storage)
	id, _ := s.Begin()

	w.handle(Open{Session: id, Path: testPath})
	assert.Equal(t, StateWriting, w.State())

	w.handle(Data{Session: id, Payload: []byte("0,1.00,2.00\n")})
	w.handle(Data{Session: id, Payload: []byte("100,1.50,2.50\n")})
	w.handle(Close{Session: id})

	assert.Equal(t, StateIdle, w.State())
	assert.False(t, s.Busy())

	f := storage.file(testPath)
	require.NotNil(t, f)
	assert.True(t, f.closed)
	assert.Equal(t, Header+"0,1.00,2.00\n100,1.50,2.50\n", f.String())

	r, ok := s.Take()
	require.True(t, ok)
	assert.True(t, r.Success)
	assert.Equal(t, "Saved g_20261018_120000_c1.csv (60 B)", r.Status)
	assert.Equal(t, int64(60), r.Bytes)

	entries := j.all()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, testPath, entries[0].Path)
	assert.Equal(t, int64(60), entries[0].Bytes)
}

func TestWorker_MountFailureDrains(t *testing.T) {
	storage := newMemStorage()
	storage.mountErr = ErrNoStorage
	w, s, j := newTestWorker(storage)
	id, _ := s.Begin()

	w.handle(Open{Session: id, Path: testPath})
	assert.Equal(t, StateDraining, w.State())
	assert.True(t, s.Done(), "failure is reported before Close")
	assert.True(t, s.Busy())

	w.handle(Data{Session: id, Payload: []byte("0,1.00,2.00\n")})
	w.handle(Close{Session: id})
	assert.Equal(t, StateIdle, w.State())
	assert.False(t, s.Busy())

	r, ok := s.Take()
	require.True(t, ok)
	assert.False(t, r.Success)
	assert.Contains(t, r.Status, "Storage unavailable")
	assert.Nil(t, storage.file(testPath))

	require.Len(t, j.all(), 1)
	assert.False(t, j.all()[0].Success)

	// Ready for the next session
	storage.mountErr = nil
	id, _ = s.Begin()
	w.handle(Open{Session: id, Path: "/export/next.csv"})
	w.handle(Close{Session: id})
	r, ok = s.Take()
	require.True(t, ok)
	assert.True(t, r.Success)
}

func TestWorker_CreateFailure(t *testing.T) {
	storage := newMemStorage()
	storage.createErr = errors.New("read-only")
	w, s, _ := newTestWorker(storage)
	id, _ := s.Begin()

	w.handle(Open{Session: id, Path: testPath})
	w.handle(Close{Session: id})

	r, ok := s.Take()
	require.True(t, ok)
	assert.False(t, r.Success)
	assert.Equal(t, "Cannot create g_20261018_120000_c1.csv: read-only", r.Status)
	assert.False(t, s.Busy())
}

func TestWorker_WriteFailureReportedAtClose(t *testing.T) {
	storage := newMemStorage()
	storage.writeErr = errors.New("card removed")
	w, s, _ := newTestWorker(storage)
	id, _ := s.Begin()

	w.handle(Open{Session: id, Path: testPath})
	assert.Equal(t, StateDraining, w.State(), "header write failed")
	assert.True(t, storage.file(testPath).closed)
	assert.True(t, s.Busy(), "busy until Close")

	w.handle(Data{Session: id, Payload: []byte("0,1.00,2.00\n")})
	assert.Empty(t, storage.file(testPath).String(), "draining ignores data")
	w.handle(Close{Session: id})

	r, ok := s.Take()
	require.True(t, ok)
	assert.False(t, r.Success)
	assert.Equal(t, "Write failed: card removed", r.Status)
	assert.False(t, s.Busy())
	assert.Equal(t, StateIdle, w.State())
}

func TestWorker_PayloadWriteFailure(t *testing.T) {
	storage := newMemStorage()
	w, s, j := newTestWorker(storage)
	id, _ := s.Begin()

	w.handle(Open{Session: id, Path: testPath})
	storage.file(testPath).writeErr = errors.New("disk full")
	w.handle(Data{Session: id, Payload: []byte("0,1.00,2.00\n")})
	assert.False(t, s.Done(), "write errors surface at Close")
	w.handle(Close{Session: id})

	r, ok := s.Take()
	require.True(t, ok)
	assert.False(t, r.Success)
	assert.Equal(t, "Write failed: disk full", r.Status)
	assert.True(t, storage.file(testPath).closed)
	assert.False(t, s.Busy())
	require.Len(t, j.all(), 1)
}

func TestWorker_IgnoresForeignMessages(t *testing.T) {
	storage := newMemStorage()
	w, s, _ := newTestWorker(storage)

	w.handle(Data{Session: 7, Payload: []byte("x\n")})
	w.handle(Close{Session: 7})
	assert.Equal(t, StateIdle, w.State())

	id, _ := s.Begin()
	w.handle(Open{Session: id, Path: testPath})
	w.handle(Data{Session: id + 1, Payload: []byte("x\n")})
	w.handle(Close{Session: id + 1})
	assert.Equal(t, StateWriting, w.State())
	assert.True(t, s.Busy())

	w.handle(Close{Session: id})
	assert.Equal(t, Header, storage.file(testPath).String())
}

func TestWorker_ForceClosesAbandonedFile(t *testing.T) {
	storage := newMemStorage()
	w, s, j := newTestWorker(storage)

	first, _ := s.Begin()
	w.handle(Open{Session: first, Path: "/export/first.csv"})
	w.handle(Data{Session: first, Payload: []byte("0,1.00,2.00\n")})

	// The coordinator abandoned the session before sending Close
	s.Publish(Result{Session: first, Status: "Export aborted: export queue full"})
	s.Release(first)
	s.Take()

	second, _ := s.Begin()
	w.handle(Open{Session: second, Path: "/export/second.csv"})

	stale := storage.file("/export/first.csv")
	require.NotNil(t, stale)
	assert.True(t, stale.closed)
	assert.Equal(t, StateWriting, w.State())

	w.handle(Close{Session: second})
	r, ok := s.Take()
	require.True(t, ok)
	assert.True(t, r.Success)
	assert.Equal(t, second, r.Session)
	assert.False(t, s.Busy())

	entries := j.all()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "/export/first.csv", entries[0].Path)
	assert.Contains(t, entries[0].Status, "Incomplete")
	assert.True(t, entries[1].Success)
}

func TestWorker_RunEndToEnd(t *testing.T) {
	root := t.TempDir()
	storage := &DirStorage{Root: filepath.Join(root, "sdcard")}

	q := NewQueue(DefaultQueueDepth)
	s := NewSession(0)
	j := &memJournal{}
	w := NewWorker(q, s, storage, WithJournal(j))
	c := NewCoordinator(q, s, testExportConfig(), WithClock(func() time.Time { return testTime }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- w.Run(ctx)
	}()

	points := quarterPoints(500, 1000)
	require.NoError(t, c.Submit(pointSource(points)))

	require.Eventually(t, func() bool { return s.Done() && !s.Busy() }, 2*time.Second, 5*time.Millisecond)

	r, ok := s.Take()
	require.True(t, ok)
	assert.True(t, r.Success, r.Status)

	content, err := os.ReadFile(filepath.Join(root, "sdcard", "export", "g_20261018_120000_c1.csv"))
	require.NoError(t, err)
	assert.Equal(t, Header+csvBody(points), string(content))
	assert.Equal(t, int64(len(content)), r.Bytes)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_RunClosesHeldFileOnShutdown(t *testing.T) {
	storage := newMemStorage()
	q := NewQueue(DefaultQueueDepth)
	s := NewSession(0)
	j := &memJournal{}
	w := NewWorker(q, s, storage, WithJournal(j))

	id, _ := s.Begin()
	require.NoError(t, q.Send(Open{Session: id, Path: testPath}, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return w.State() == StateWriting }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.True(t, storage.file(testPath).closed)
	require.Len(t, j.all(), 1)
	assert.Contains(t, j.all()[0].Status, "worker stopped")
}

func TestDirStorage(t *testing.T) {
	root := filepath.Join(t.TempDir(), "card")
	s := &DirStorage{Root: root}

	require.NoError(t, s.Mount())

	f, err := s.Create("/export/deep/file.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	content, err := os.ReadFile(filepath.Join(root, "export", "deep", "file.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	// Paths stay inside the root
	f, err = s.Create("../../escape.csv")
	require.NoError(t, err)
	f.Close()
	_, err = os.Stat(filepath.Join(root, "escape.csv"))
	assert.NoError(t, err)
}

func TestDirStorage_MountErrors(t *testing.T) {
	assert.ErrorIs(t, (&DirStorage{}).Mount(), ErrNoStorage)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.ErrorIs(t, (&DirStorage{Root: file}).Mount(), ErrNoStorage)
}
