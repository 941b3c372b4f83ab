package export

const (
	// BufSize is the payload capacity of a single Data message.
	BufSize = 4096
	// DefaultFlushThreshold is the accumulated length at which the assembly buffer is sent.
	DefaultFlushThreshold = 3500
	// DefaultGuardMargin is the headroom kept free in the assembly buffer.
	// It must be at least MaxRowLen.
	DefaultGuardMargin = 48
	// MaxPathLen bounds the target path carried by an Open message.
	MaxPathLen = 128
)

// Message is one step of an export session as seen by the storage worker.
// It is one of Open, Data or Close.
type Message interface {
	session() uint32
}

// Open asks the worker to create the target file of a session.
type Open struct {
	Session uint32
	Path    string
}

// Data carries serialized rows to append verbatim. Payload is owned by the message.
type Data struct {
	Session uint32
	Payload []byte
}

// Close terminates a session.
type Close struct {
	Session uint32
}

func (m Open) session() uint32  { return m.Session }
func (m Data) session() uint32  { return m.Session }
func (m Close) session() uint32 { return m.Session }
