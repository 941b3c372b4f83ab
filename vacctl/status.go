package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"
	"github.com/itohio/govac/pkg/export"
	"github.com/itohio/govac/pkg/radio"
	"github.com/itohio/govac/pkg/sample"
)

// statusBar shows capture, export and radio state below the scope.
// It implements export.Notifier and must only be used on the Fyne main thread.
type statusBar struct {
	capture *widget.Label
	export  *widget.Label
	radio   *widget.Label

	now func() time.Time

	// Rejection notices expire and restore the text they covered.
	noticeUntil    time.Time
	prevText       string
	prevImportance widget.Importance
}

// noticeTimeout is how long a busy or no-data notice stays on screen.
const noticeTimeout = 2 * time.Second

var _ export.Notifier = (*statusBar)(nil)

func newStatusBar() *statusBar {
	b := &statusBar{
		capture: widget.NewLabel("No capture"),
		export:  widget.NewLabel(""),
		radio:   widget.NewLabel(""),
		now:     time.Now,
	}
	b.Redraw()
	return b
}

// Object returns the bar's canvas object.
func (b *statusBar) Object() fyne.CanvasObject {
	return container.NewBorder(nil, nil, b.capture, b.radio, b.export)
}

// Notice shows a transient export indicator.
func (b *statusBar) Notice(n export.Notice) {
	if n == export.NoticeExporting {
		b.noticeUntil = time.Time{}
		b.setExport(n.String(), widget.HighImportance)
		return
	}

	if b.noticeUntil.IsZero() {
		b.prevText, b.prevImportance = b.export.Text, b.export.Importance
	}
	b.noticeUntil = b.now().Add(noticeTimeout)
	b.setExport(n.String(), widget.WarningImportance)
}

// expireNotice restores the export text once a rejection notice times out.
func (b *statusBar) expireNotice() {
	if b.noticeUntil.IsZero() || b.now().Before(b.noticeUntil) {
		return
	}
	b.noticeUntil = time.Time{}
	b.setExport(b.prevText, b.prevImportance)
}

// Result shows the outcome of a finished export session.
func (b *statusBar) Result(r export.Result) {
	b.noticeUntil = time.Time{}
	if r.Success {
		b.setExport(r.Status, widget.SuccessImportance)
		return
	}
	b.setExport(r.Status, widget.DangerImportance)
}

// Redraw restores the idle export text.
func (b *statusBar) Redraw() {
	b.noticeUntil = time.Time{}
	b.setExport("Ready to export", widget.MediumImportance)
}

func (b *statusBar) setExport(text string, importance widget.Importance) {
	b.export.Importance = importance
	b.export.SetText(text)
}

// showCapture shows the latest sample and the ring fill level.
func (b *statusBar) showCapture(latest sample.Point, ok bool, count, capacity int) {
	if !ok {
		b.capture.SetText("No capture")
		return
	}
	b.capture.SetText(fmt.Sprintf("%.2f kPa  %.2f A  %s/%s points",
		latest.Pressure, latest.Current, humanize.Comma(int64(count)), humanize.Comma(int64(capacity))))
}

// showRadio summarizes the radio controller status.
func (b *statusBar) showRadio(s radio.Status) {
	link := "link down"
	if s.Connected {
		link = fmt.Sprintf("%d dBm", s.TxPower)
	}
	mode := s.Mode.String()
	if s.PowerSaveActive {
		mode += "+save"
	}
	b.radio.SetText(fmt.Sprintf("%s  %s  %s  saving %.0f%%  %s tx / %s rx",
		mode, s.Activity, link, s.SavingRatio, humanize.Comma(int64(s.TxPackets)), humanize.Comma(int64(s.RxPackets))))
}
