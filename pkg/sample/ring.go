package sample

import (
	"sync"
	"time"
)

// DefaultMaxPoints is the capture capacity used when none is configured.
const DefaultMaxPoints = 3600

// Point is a single captured sample as stored in the ring and exported.
type Point struct {
	Pressure     float32 // kPa
	Current      float32 // A
	TimeOffsetMs uint32  // Milliseconds since the capture session started
}

// Ring is a fixed-capacity capture buffer. Once full, new points overwrite the
// oldest and the logical order starts at writeIndex.
//
// One producer (ProcessSamples or Add) and any number of readers may use it concurrently.
type Ring struct {
	mu         sync.RWMutex
	points     []Point
	writeIndex int
	full       bool
	origin     time.Time

	callbacks []func(latest Point, count int)
	cbMu      sync.RWMutex
}

// NewRing creates a ring holding up to capacity points.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultMaxPoints
	}
	return &Ring{
		points: make([]Point, capacity),
	}
}

// Add inserts a point, overwriting the oldest one when the ring is full.
func (r *Ring) Add(p Point) {
	r.mu.Lock()
	count := r.addLocked(p)
	r.mu.Unlock()

	r.notify(p, count)
}

// Record inserts a converted sample. The first sample after a Reset marks the
// capture origin that later time offsets are measured from.
func (r *Ring) Record(s Sample) {
	r.mu.Lock()
	if r.origin.IsZero() {
		r.origin = s.Timestamp
	}
	p := Point{
		Pressure:     s.Pressure,
		Current:      s.Current,
		TimeOffsetMs: offsetMs(s.Timestamp.Sub(r.origin)),
	}
	count := r.addLocked(p)
	r.mu.Unlock()

	r.notify(p, count)
}

func (r *Ring) addLocked(p Point) int {
	r.points[r.writeIndex] = p
	r.writeIndex++
	if r.writeIndex == len(r.points) {
		r.writeIndex = 0
		r.full = true
	}
	return r.lenLocked()
}

// Reset discards every point and the capture origin.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeIndex = 0
	r.full = false
	r.origin = time.Time{}
}

// Len returns the number of points held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Ring) lenLocked() int {
	if r.full {
		return len(r.points)
	}
	return r.writeIndex
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.points)
}

// Each calls fn for every point from oldest to newest until fn returns false.
// The ring is read-locked for the duration, so fn must not call back into it.
func (r *Ring) Each(fn func(Point) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.lenLocked()
	start := 0
	if r.full {
		start = r.writeIndex
	}
	for i := range n {
		if !fn(r.points[(start+i)%len(r.points)]) {
			return
		}
	}
}

// Points returns a copy of the held points, oldest first.
func (r *Ring) Points() []Point {
	out := make([]Point, 0, r.Len())
	r.Each(func(p Point) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Latest returns the most recently inserted point.
func (r *Ring) Latest() (Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lenLocked() == 0 {
		return Point{}, false
	}
	i := r.writeIndex - 1
	if i < 0 {
		i = len(r.points) - 1
	}
	return r.points[i], true
}

// OnUpdate registers a callback invoked after every insertion.
func (r *Ring) OnUpdate(fn func(latest Point, count int)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

func (r *Ring) notify(p Point, count int) {
	r.cbMu.RLock()
	defer r.cbMu.RUnlock()
	for _, cb := range r.callbacks {
		cb(p, count)
	}
}

// ProcessSamples records samples from the input channel until it closes.
func (r *Ring) ProcessSamples(input <-chan Sample) {
	for s := range input {
		r.Record(s)
	}
}

func offsetMs(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}
