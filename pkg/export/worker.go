package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// State is the storage worker state.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateWriting
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateWriting:
		return "writing"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Entry is the journal record of one finished or abandoned session.
type Entry struct {
	Session    uint32
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
	Bytes      int64
	Success    bool
	Status     string
}

// Journal records finished sessions.
type Journal interface {
	Record(e Entry) error
}

// Worker is the single consumer of the export queue and the only owner of the
// storage device. Run it on a dedicated goroutine.
type Worker struct {
	queue   *Queue
	session *Session
	storage Storage

	logger  *slog.Logger
	now     func() time.Time
	journal Journal

	mu    sync.Mutex
	state State

	file     io.WriteCloser
	current  uint32
	path     string
	started  time.Time
	written  int64
	writeErr error
}

// NewWorker creates a worker draining q into storage.
func NewWorker(q *Queue, s *Session, storage Storage, opts ...Option) *Worker {
	o := newOptions(opts)
	return &Worker{
		queue:   q,
		session: s,
		storage: storage,
		logger:  o.logger.With(slog.String("component", "storage")),
		now:     o.now,
		journal: o.journal,
	}
}

// State returns the current worker state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run processes messages until ctx is cancelled. A file still open at that
// point is closed and journaled as incomplete.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("storage worker started")
	defer w.logger.Debug("storage worker stopped")
	defer w.dropHeld("worker stopped")

	for {
		msg, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		w.handle(msg)
	}
}

func (w *Worker) handle(msg Message) {
	switch m := msg.(type) {
	case Open:
		w.open(m)
	case Data:
		w.write(m)
	case Close:
		w.close(m)
	}
}

func (w *Worker) open(m Open) {
	w.dropHeld("session abandoned")

	w.setState(StateOpening)
	w.current = m.Session
	w.path = m.Path
	w.started = w.now()
	w.written = 0
	w.writeErr = nil

	if err := w.storage.Mount(); err != nil {
		w.fail(fmt.Sprintf("Storage unavailable: %v", err))
		return
	}

	f, err := w.storage.Create(m.Path)
	if err != nil {
		w.fail(fmt.Sprintf("Cannot create %s: %v", path.Base(m.Path), err))
		return
	}

	n, err := io.WriteString(f, Header)
	w.written += int64(n)
	if err != nil {
		f.Close()
		w.fail(fmt.Sprintf("Write failed: %v", err))
		return
	}

	w.file = f
	w.setState(StateWriting)
	w.logger.Debug("export file opened", slog.Uint64("session", uint64(m.Session)), slog.String("path", m.Path))
}

func (w *Worker) write(m Data) {
	if w.State() != StateWriting || m.Session != w.current {
		w.logger.Debug("data ignored", slog.Uint64("session", uint64(m.Session)),
			slog.String("state", w.State().String()))
		return
	}
	if w.writeErr != nil {
		return
	}

	n, err := w.file.Write(m.Payload)
	w.written += int64(n)
	if err != nil {
		w.writeErr = err
		w.logger.Warn("export write failed", slog.Uint64("session", uint64(m.Session)), slog.String("error", err.Error()))
	}
}

func (w *Worker) close(m Close) {
	if m.Session != w.current {
		w.logger.Debug("close ignored", slog.Uint64("session", uint64(m.Session)))
		return
	}

	switch w.State() {
	case StateWriting:
		err := w.file.Close()
		w.file = nil
		if err == nil {
			err = w.writeErr
		}

		r := Result{Session: w.current, Path: w.path, Bytes: w.written}
		if err != nil {
			r.Status = fmt.Sprintf("Write failed: %v", err)
		} else {
			r.Success = true
			r.Status = fmt.Sprintf("Saved %s (%s)", path.Base(w.path), humanize.Bytes(uint64(w.written)))
		}

		w.session.Publish(r)
		w.session.Release(w.current)
		w.record(r)

		w.logger.Info("export finished", slog.Uint64("session", uint64(r.Session)), slog.String("path", r.Path),
			slog.Int64("bytes", r.Bytes), slog.Bool("success", r.Success))
	default:
		w.session.Release(w.current)
	}

	w.setState(StateIdle)
}

// fail publishes a failed result for the current session and ignores its
// remaining messages until Close.
func (w *Worker) fail(status string) {
	r := Result{Session: w.current, Status: status, Path: w.path}
	w.logger.Warn("export failed", slog.Uint64("session", uint64(w.current)), slog.String("status", status))

	w.session.Publish(r)
	w.record(r)
	w.setState(StateDraining)
}

// dropHeld closes a file left open by a session whose Close never arrived.
func (w *Worker) dropHeld(reason string) {
	if w.file == nil {
		return
	}

	if err := w.file.Close(); err != nil {
		w.logger.Warn("failed to close stale export file", slog.String("path", w.path), slog.String("error", err.Error()))
	}
	w.file = nil
	w.logger.Warn("export file force-closed", slog.Uint64("session", uint64(w.current)),
		slog.String("path", w.path), slog.String("reason", reason))

	w.record(Result{
		Session: w.current,
		Path:    w.path,
		Bytes:   w.written,
		Status:  "Incomplete: " + reason,
	})
	w.setState(StateIdle)
}

func (w *Worker) record(r Result) {
	if w.journal == nil {
		return
	}
	e := Entry{
		Session:    r.Session,
		Path:       r.Path,
		StartedAt:  w.started,
		FinishedAt: w.now(),
		Bytes:      r.Bytes,
		Success:    r.Success,
		Status:     r.Status,
	}
	if err := w.journal.Record(e); err != nil {
		w.logger.Warn("failed to journal export", slog.Uint64("session", uint64(r.Session)), slog.String("error", err.Error()))
	}
}
