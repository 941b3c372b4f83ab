package radio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the AT command port speed of the radio module.
	DefaultBaudRate = 115200
	// DefaultCommandTimeout bounds how long a command waits for its final response.
	DefaultCommandTimeout = 500 * time.Millisecond

	readTimeout = 50 * time.Millisecond
	maxLineLen  = 256
)

var (
	// ErrLinkDown is returned when the radio is not associated or the port is closed.
	ErrLinkDown = errors.New("radio link down")
	// ErrCommandFailed is returned when the module answers ERROR.
	ErrCommandFailed = errors.New("radio command failed")
	// ErrTimeout is returned when no final response arrives in time.
	ErrTimeout = errors.New("radio command timed out")
)

// SerialLink talks to a radio module over an AT command serial port.
type SerialLink struct {
	portName string
	baudRate int
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	port      io.ReadWriteCloser
	pending   []byte
	connected bool
}

var _ Link = (*SerialLink)(nil)

// WithLinkLogger sets the serial link logger.
func WithLinkLogger(logger *slog.Logger) func(*SerialLink) {
	return func(l *SerialLink) {
		l.logger = logger.With(slog.String("port", l.portName))
	}
}

// WithCommandTimeout sets how long each AT command may take.
func WithCommandTimeout(d time.Duration) func(*SerialLink) {
	return func(l *SerialLink) {
		l.timeout = d
	}
}

// NewSerialLink creates a link on portName. Call Open before use.
func NewSerialLink(portName string, baudRate int, options ...func(*SerialLink)) *SerialLink {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	l := &SerialLink{
		portName: portName,
		baudRate: baudRate,
		timeout:  DefaultCommandTimeout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Open opens the serial port and checks the module answers.
func (l *SerialLink) Open() error {
	port, err := serial.Open(l.portName, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open radio port %s: %w", l.portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", l.portName, err)
	}
	return l.attach(port)
}

func (l *SerialLink) attach(port io.ReadWriteCloser) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.port = port
	l.pending = l.pending[:0]
	if _, err := l.command("AT"); err != nil {
		l.port = nil
		port.Close()
		return fmt.Errorf("radio on %s not responding: %w", l.portName, err)
	}
	l.connected = true
	return nil
}

// Close closes the serial port.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connected = false
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func (l *SerialLink) SetSleep(level SleepLevel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.command(fmt.Sprintf("AT+SLEEP=%d", int(level)))
	return err
}

func (l *SerialLink) SetTxPower(dbm int8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.command(fmt.Sprintf("AT+TXPOWER=%d", dbm))
	return err
}

func (l *SerialLink) RSSI() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return 0, ErrLinkDown
	}
	lines, err := l.command("AT+RSSI?")
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if v, ok := strings.CutPrefix(line, "+RSSI:"); ok {
			rssi, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0, fmt.Errorf("invalid rssi response %q: %w", line, err)
			}
			return rssi, nil
		}
	}
	return 0, fmt.Errorf("no rssi in response %q", lines)
}

func (l *SerialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *SerialLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.command("AT+CONNECT"); err != nil {
		return err
	}
	l.connected = true
	return nil
}

func (l *SerialLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.command("AT+DISCONNECT"); err != nil {
		return err
	}
	l.connected = false
	return nil
}

// command sends cmd and collects the information lines preceding OK.
func (l *SerialLink) command(cmd string) ([]string, error) {
	if l.port == nil {
		return nil, ErrLinkDown
	}

	if _, err := io.WriteString(l.port, cmd+"\r\n"); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	deadline := time.Now().Add(l.timeout)
	var lines []string
	for {
		line, err := l.readLine(deadline)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cmd, err)
		}
		switch {
		case line == "" || line == cmd:
			// blank line or echo
		case line == "OK":
			l.logger.Debug("at command", slog.String("cmd", cmd), slog.Any("response", lines))
			return lines, nil
		case line == "ERROR" || strings.HasPrefix(line, "+ERROR"):
			return nil, fmt.Errorf("%s: %w", cmd, ErrCommandFailed)
		default:
			lines = append(lines, line)
		}
	}
}

// readLine returns the next line without its terminator. A read returning no
// data means the port read timeout expired.
func (l *SerialLink) readLine(deadline time.Time) (string, error) {
	var buf [64]byte
	for {
		for i, b := range l.pending {
			if b == '\n' {
				line := strings.TrimSpace(string(l.pending[:i]))
				l.pending = append(l.pending[:0], l.pending[i+1:]...)
				return line, nil
			}
		}
		if len(l.pending) > maxLineLen {
			l.pending = l.pending[:0]
			return "", fmt.Errorf("response line longer than %d bytes", maxLineLen)
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}

		n, err := l.port.Read(buf[:])
		l.pending = append(l.pending, buf[:n]...)
		if err != nil {
			return "", err
		}
	}
}
