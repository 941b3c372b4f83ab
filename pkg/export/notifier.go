package export

// Notice is a synchronous UI notice raised by the coordinator.
type Notice int

const (
	NoticeExporting Notice = iota
	NoticeBusy
	NoticeNoData
)

func (n Notice) String() string {
	switch n {
	case NoticeExporting:
		return "Exporting..."
	case NoticeBusy:
		return "Export busy"
	case NoticeNoData:
		return "No data to export"
	default:
		return "Unknown notice"
	}
}

// Notifier is the UI surface the export pipeline reports to. Implementations
// must not block: they are called from the caller's loop.
type Notifier interface {
	// Notice shows a transient indicator.
	Notice(n Notice)
	// Result shows success or failure feedback for a finished session.
	Result(r Result)
	// Redraw restores the regular screen once a feedback window expires.
	Redraw()
}

type nopNotifier struct{}

func (nopNotifier) Notice(Notice) {}
func (nopNotifier) Result(Result) {}
func (nopNotifier) Redraw()       {}
