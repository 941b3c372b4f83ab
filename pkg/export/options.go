package export

import (
	"io"
	"log/slog"
	"time"
)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	notifier Notifier
	journal  Journal
}

// Option configures a Coordinator, Worker or Poller.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithNotifier sets the UI surface for notices and feedback.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithJournal makes the worker record every finished session.
func WithJournal(j Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		notifier: nopNotifier{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
