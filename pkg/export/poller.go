package export

import (
	"log/slog"
	"time"
)

// DefaultAckWindow is how long session feedback stays on screen.
const DefaultAckWindow = 2 * time.Second

// Poller surfaces finished sessions to the UI. Call Poll once per caller loop
// iteration; it never blocks.
type Poller struct {
	session  *Session
	window   time.Duration
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	deadline time.Time
	active   bool
}

// NewPoller creates a poller showing each result for window.
func NewPoller(s *Session, window time.Duration, opts ...Option) *Poller {
	o := newOptions(opts)
	if window <= 0 {
		window = DefaultAckWindow
	}
	return &Poller{
		session:  s,
		window:   window,
		notifier: o.notifier,
		logger:   o.logger.With(slog.String("component", "poller")),
		now:      o.now,
	}
}

// Showing reports whether session feedback is currently on screen.
func (p *Poller) Showing() bool {
	return p.active
}

// Poll advances the feedback window and picks up a pending result.
func (p *Poller) Poll() {
	if p.active {
		if p.now().Before(p.deadline) {
			return
		}
		p.active = false
		p.notifier.Redraw()
		return
	}

	r, ok := p.session.Take()
	if !ok {
		return
	}

	p.logger.Debug("export result", slog.Uint64("session", uint64(r.Session)), slog.Bool("success", r.Success),
		slog.String("status", r.Status))
	p.notifier.Result(r)
	p.active = true
	p.deadline = p.now().Add(p.window)
}
