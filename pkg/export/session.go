package export

import (
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// MaxStatusLen bounds the status string surfaced to the UI.
const MaxStatusLen = 128

// Result is the outcome of one export session.
type Result struct {
	Session uint32
	Success bool
	Status  string
	Path    string
	Bytes   int64
}

// Session is the state shared between the coordinator, the worker and the poller.
//
// busy covers a session from Open submission until its Close is processed (or
// the submission is abandoned). done is raised once per session when a result
// is published and lowered by the single consumer that takes it.
type Session struct {
	busy    atomic.Bool
	done    atomic.Bool
	counter atomic.Uint32

	mu      sync.Mutex
	result  Result
	settled uint32
}

// NewSession creates session state whose next session number is last+1.
func NewSession(last uint32) *Session {
	s := &Session{}
	s.counter.Store(last)
	return s
}

// Busy reports whether an export is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Done reports whether an untaken result is pending.
func (s *Session) Done() bool {
	return s.done.Load()
}

// Current returns the number of the most recently started session.
func (s *Session) Current() uint32 {
	return s.counter.Load()
}

// Begin marks a new session busy and returns its number. It fails if another
// session is still busy.
func (s *Session) Begin() (uint32, bool) {
	if !s.busy.CompareAndSwap(false, true) {
		return 0, false
	}
	s.done.Store(false)
	return s.counter.Add(1), true
}

// Publish records the result of session r.Session and raises done. Only the
// first result published for a session is kept.
func (s *Session) Publish(r Result) bool {
	s.mu.Lock()
	if s.settled == r.Session {
		s.mu.Unlock()
		return false
	}
	r.Status = truncate(r.Status, MaxStatusLen)
	s.settled = r.Session
	s.result = r
	s.mu.Unlock()

	s.done.Store(true)
	return true
}

// Release clears busy if id is still the current session.
func (s *Session) Release(id uint32) bool {
	if s.counter.Load() != id {
		return false
	}
	return s.busy.CompareAndSwap(true, false)
}

// Take consumes a pending result. Only one caller observes each result.
func (s *Session) Take() (Result, bool) {
	if !s.done.CompareAndSwap(true, false) {
		return Result{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, true
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
