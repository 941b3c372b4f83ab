package export

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/sample"
)

var (
	// ErrBusy is returned when an export is requested while another is in flight.
	ErrBusy = errors.New("export already in progress")
	// ErrNoData is returned when the sample buffer is empty.
	ErrNoData = errors.New("no samples to export")
)

// DefaultSendTimeout bounds how long Submit waits for queue space per message.
const DefaultSendTimeout = 200 * time.Millisecond

// Source is a read-only view of captured samples.
type Source interface {
	// Points returns the samples oldest first. The caller owns the slice.
	Points() []sample.Point
}

var _ Source = (*sample.Ring)(nil)

// Coordinator turns a sample buffer into an export session on the queue.
// It runs on the caller's goroutine and never touches the storage device.
type Coordinator struct {
	queue   *Queue
	session *Session

	dir         string
	sendTimeout time.Duration
	flushAt     int
	guard       int

	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time

	mu  sync.Mutex
	buf []byte
}

// NewCoordinator creates a coordinator feeding q and sharing s with the worker.
func NewCoordinator(q *Queue, s *Session, cfg *config.ExportConfig, opts ...Option) *Coordinator {
	o := newOptions(opts)

	c := &Coordinator{
		queue:       q,
		session:     s,
		dir:         cfg.Dir,
		sendTimeout: cfg.SendTimeout,
		flushAt:     cfg.FlushThreshold,
		guard:       cfg.GuardMargin,
		logger:      o.logger.With(slog.String("component", "export")),
		notifier:    o.notifier,
		now:         o.now,
		buf:         make([]byte, 0, BufSize),
	}

	if c.sendTimeout <= 0 {
		c.sendTimeout = DefaultSendTimeout
	}
	if c.guard < MaxRowLen {
		c.guard = DefaultGuardMargin
	}
	if c.flushAt <= 0 || c.flushAt > BufSize-c.guard {
		c.flushAt = DefaultFlushThreshold
	}

	return c
}

// Submit starts exporting src and returns as soon as the whole session is
// queued. Completion is reported through the Session and picked up by a Poller.
func (c *Coordinator) Submit(src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Busy() {
		c.notifier.Notice(NoticeBusy)
		return ErrBusy
	}

	points := src.Points()
	if len(points) == 0 {
		c.notifier.Notice(NoticeNoData)
		return ErrNoData
	}

	id, ok := c.session.Begin()
	if !ok {
		c.notifier.Notice(NoticeBusy)
		return ErrBusy
	}

	path := FileName(c.dir, c.now(), id)
	if len(path) > MaxPathLen {
		return c.abandon(id, path, fmt.Errorf("path %q longer than %d bytes", path, MaxPathLen))
	}

	if err := c.queue.Send(Open{Session: id, Path: path}, c.sendTimeout); err != nil {
		return c.abandon(id, path, err)
	}

	if err := c.sendRows(id, points); err != nil {
		return c.abandon(id, path, err)
	}

	if err := c.queue.Send(Close{Session: id}, c.sendTimeout); err != nil {
		return c.abandon(id, path, err)
	}

	c.logger.Debug("export queued", slog.Uint64("session", uint64(id)), slog.String("path", path),
		slog.Int("points", len(points)))
	c.notifier.Notice(NoticeExporting)
	return nil
}

// sendRows serializes points into Data messages whose boundaries fall on row ends.
func (c *Coordinator) sendRows(id uint32, points []sample.Point) error {
	var scratch [MaxRowLen]byte
	c.buf = c.buf[:0]

	for _, p := range points {
		row := AppendRow(scratch[:0], p)

		if len(c.buf)+len(row) > BufSize-c.guard {
			if err := c.flush(id); err != nil {
				return err
			}
		}

		c.buf = append(c.buf, row...)

		if len(c.buf) >= c.flushAt {
			if err := c.flush(id); err != nil {
				return err
			}
		}
	}

	if len(c.buf) > 0 {
		return c.flush(id)
	}
	return nil
}

func (c *Coordinator) flush(id uint32) error {
	payload := make([]byte, len(c.buf))
	copy(payload, c.buf)
	c.buf = c.buf[:0]
	return c.queue.Send(Data{Session: id, Payload: payload}, c.sendTimeout)
}

// abandon gives up on a session after a send failed. The rest of the session is
// not retried; the worker force-closes any file left open at the next Open.
func (c *Coordinator) abandon(id uint32, path string, err error) error {
	c.logger.Warn("export abandoned", slog.Uint64("session", uint64(id)), slog.String("path", path),
		slog.String("error", err.Error()))

	c.session.Publish(Result{
		Session: id,
		Success: false,
		Status:  fmt.Sprintf("Export aborted: %v", err),
		Path:    path,
	})
	c.session.Release(id)

	return fmt.Errorf("export session %d: %w", id, err)
}
