package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/govac/pkg/sample"
)

// DefaultMaxDisplayPoints limits how many points are drawn per trace.
const DefaultMaxDisplayPoints = 1000

// minWindowMs is the shortest time span shown on the X axis.
const minWindowMs = 10_000

// Range is a closed interval on one plot axis.
type Range struct {
	Min, Max float32
}

// Span returns Max-Min.
func (r Range) Span() float32 {
	return r.Max - r.Min
}

// ScopeWidget is a Fyne widget plotting captured pressure and pump current
// against capture time. Pressure is scaled on the left axis, current on the right.
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu      sync.RWMutex
	display []sample.Point

	pressure Range
	current  Range
	timeMs   Range

	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New() *ScopeWidget {
	s := &ScopeWidget{
		display:          make([]sample.Point, 0, DefaultMaxDisplayPoints),
		maxDisplayPoints: DefaultMaxDisplayPoints,
	}
	s.pressure, s.current, s.timeMs = autoScale(nil)
	s.ExtendBaseWidget(s)
	return s
}

// UpdatePoints replaces the plotted data with points, oldest first.
// Must be called on the Fyne main thread (use fyne.Do from other goroutines).
func (s *ScopeWidget) UpdatePoints(points []sample.Point) {
	s.mu.Lock()
	s.display = sample.DownsamplePoints(s.display, points, s.maxDisplayPoints)
	s.pressure, s.current, s.timeMs = autoScale(s.display)
	s.mu.Unlock()

	// Outside the lock: Refresh re-enters the renderer which read-locks.
	s.Refresh()
}

// Ranges returns the current axis ranges.
func (s *ScopeWidget) Ranges() (pressure, current, timeMs Range) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pressure, s.current, s.timeMs
}

// autoScale fits both traces with a 10% margin and a minimum time window.
func autoScale(points []sample.Point) (pressure, current, timeMs Range) {
	if len(points) == 0 {
		return Range{0, 1}, Range{0, 1}, Range{0, minWindowMs}
	}

	first := points[0]
	pressure = Range{first.Pressure, first.Pressure}
	current = Range{first.Current, first.Current}
	for _, p := range points[1:] {
		pressure.Min = min(pressure.Min, p.Pressure)
		pressure.Max = max(pressure.Max, p.Pressure)
		current.Min = min(current.Min, p.Current)
		current.Max = max(current.Max, p.Current)
	}

	timeMs = Range{float32(first.TimeOffsetMs), float32(points[len(points)-1].TimeOffsetMs)}
	if timeMs.Span() < minWindowMs {
		timeMs.Max = timeMs.Min + minWindowMs
	}

	return withMargin(pressure), withMargin(current), timeMs
}

func withMargin(r Range) Range {
	span := r.Span()
	if span == 0 {
		span = 1
	}
	margin := span * 0.1
	return Range{r.Min - margin, r.Max + margin}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:      s,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
