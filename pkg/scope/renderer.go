package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/govac/pkg/sample"
)

var (
	gridColor     = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor    = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	pressureColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	currentColor  = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
)

const (
	marginLeft   = float32(60)
	marginRight  = float32(60)
	marginTop    = float32(20)
	marginBottom = float32(40)

	numHLines = 8
	numVLines = 10
)

// plotArea maps data coordinates to canvas positions.
type plotArea struct {
	x, y, width, height float32
	timeMs              Range
}

func (a plotArea) xFor(offsetMs uint32) float32 {
	return a.x + (float32(offsetMs)-a.timeMs.Min)/a.timeMs.Span()*a.width
}

func (a plotArea) yFor(v float32, r Range) float32 {
	return a.y + a.height - (v-r.Min)/r.Span()*a.height
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	background *canvas.Rectangle
	objects    []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the grid and both traces.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	points := r.scope.display
	pressure := r.scope.pressure
	current := r.scope.current
	timeMs := r.scope.timeMs
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.background}

	area := plotArea{
		x:      marginLeft,
		y:      marginTop,
		width:  size.Width - marginLeft - marginRight,
		height: size.Height - marginTop - marginBottom,
		timeMs: timeMs,
	}

	r.drawGrid(area, pressure, current)
	if len(points) > 1 {
		r.drawTrace(area, points, pressure, pressureColor, 1.5, func(p sample.Point) float32 { return p.Pressure })
		r.drawTrace(area, points, current, currentColor, 1.5, func(p sample.Point) float32 { return p.Current })
	}
}

// drawGrid draws the grid with pressure labels on the left, current on the
// right and elapsed capture time below.
func (r *scopeRenderer) drawGrid(a plotArea, pressure, current Range) {
	for i := range numHLines + 1 {
		y := a.y + float32(i)*a.height/numHLines
		r.addLine(gridColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.width, y))

		frac := float32(i) / numHLines
		r.addText(formatValue(pressure.Max-frac*pressure.Span(), "kPa"), pressureColor,
			fyne.TextAlignTrailing, fyne.NewPos(a.x-5, y-6))
		r.addText(formatValue(current.Max-frac*current.Span(), "A"), currentColor,
			fyne.TextAlignLeading, fyne.NewPos(a.x+a.width+5, y-6))
	}

	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.width/numVLines
		r.addLine(gridColor, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.height))

		elapsed := time.Duration(float32(i)*a.timeMs.Span()/numVLines) * time.Millisecond
		r.addText(formatElapsed(elapsed), labelColor, fyne.TextAlignCenter, fyne.NewPos(x-20, a.y+a.height+5))
	}
}

func (r *scopeRenderer) drawTrace(a plotArea, points []sample.Point, scale Range, c color.Color, width float32, value func(sample.Point) float32) {
	prev := fyne.NewPos(a.xFor(points[0].TimeOffsetMs), a.yFor(value(points[0]), scale))
	for _, p := range points[1:] {
		next := fyne.NewPos(a.xFor(p.TimeOffsetMs), a.yFor(value(p), scale))
		r.addLine(c, width, prev, next)
		prev = next
	}
}

func (r *scopeRenderer) addLine(c color.Color, width float32, from, to fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = from
	line.Position2 = to
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

func (r *scopeRenderer) addText(s string, c color.Color, align fyne.TextAlign, pos fyne.Position) {
	text := canvas.NewText(s, c)
	text.TextSize = 10
	text.Alignment = align
	text.Move(pos)
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatValue(v float32, unit string) string {
	return strconv.FormatFloat(float64(v), 'f', 2, 32) + " " + unit
}

func formatElapsed(d time.Duration) string {
	if d < time.Minute {
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	}
	return d.Truncate(time.Second).String()
}
