package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestPoller_NothingPending(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPoller(NewSession(0), time.Second, WithNotifier(n))

	for range 5 {
		p.Poll()
	}
	assert.Empty(t, n.results)
	assert.Zero(t, n.redraws)
	assert.False(t, p.Showing())
}

func TestPoller_FeedbackWindow(t *testing.T) {
	n := &recordingNotifier{}
	clock := &fakeClock{now: testTime}
	s := NewSession(0)
	p := NewPoller(s, 2*time.Second, WithNotifier(n), WithClock(clock.Now))

	id, _ := s.Begin()
	s.Publish(Result{Session: id, Success: true, Status: "Saved"})
	s.Release(id)

	p.Poll()
	require.Len(t, n.results, 1)
	assert.Equal(t, "Saved", n.results[0].Status)
	assert.True(t, p.Showing())

	clock.Advance(1999 * time.Millisecond)
	p.Poll()
	assert.True(t, p.Showing())
	assert.Zero(t, n.redraws)

	clock.Advance(time.Millisecond)
	p.Poll()
	assert.False(t, p.Showing())
	assert.Equal(t, 1, n.redraws)

	clock.Advance(time.Minute)
	p.Poll()
	p.Poll()
	assert.Len(t, n.results, 1, "each session is reported once")
	assert.Equal(t, 1, n.redraws)
}

func TestPoller_ResultDuringWindowWaits(t *testing.T) {
	n := &recordingNotifier{}
	clock := &fakeClock{now: testTime}
	s := NewSession(0)
	p := NewPoller(s, 2*time.Second, WithNotifier(n), WithClock(clock.Now))

	id, _ := s.Begin()
	s.Publish(Result{Session: id, Status: "first"})
	s.Release(id)
	p.Poll()

	id, _ = s.Begin()
	s.Publish(Result{Session: id, Status: "second"})
	s.Release(id)

	p.Poll()
	require.Len(t, n.results, 1)

	clock.Advance(2 * time.Second)
	p.Poll() // window expires
	p.Poll() // next result
	require.Len(t, n.results, 2)
	assert.Equal(t, "second", n.results[1].Status)
}

func TestPoller_DefaultWindow(t *testing.T) {
	p := NewPoller(NewSession(0), 0)
	assert.Equal(t, DefaultAckWindow, p.window)
}
