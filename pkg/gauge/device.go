package gauge

import (
	"bufio"
	"context"
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
	// DefaultBaudRate is the baud rate the gauge firmware configures its UART with.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 100
	// ADCMax is the full-scale value of the 12-bit gauge ADC.
	ADCMax = 4095
)

var (
	// ErrAlreadyConnected is returned by Connect on an open device.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned by operations that need an open device.
	ErrNotConnected = errors.New("not connected")
)

// RawSample represents a raw measurement sample from the gauge MCU.
type RawSample struct {
	Timestamp time.Time
	Pressure  uint16 // 12-bit ADC reading of the pressure transducer (0-4095)
	Current   uint16 // 12-bit ADC reading of the pump current shunt (0-4095)
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// WithLogger sets the logger for the device.
func WithLogger(logger *slog.Logger) func(d *Serial) {
	return func(d *Serial) {
		d.logger = logger.With(slog.String("port", d.port))
	}
}

// Serial represents a connection to the gauge MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	logger    *slog.Logger
}

// New creates a new Serial gauge with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, options ...func(d *Serial)) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Serial{
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		samples:   make(chan RawSample, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readSamples(port)

	return nil
}

// Close closes the connection. The samples channel is closed once the
// reading goroutine has exited.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("closing serial port", slog.String("error", err.Error()))
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// Samples returns the channel for reading samples.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from the serial port and parses them into RawSample.
func (d *Serial) readSamples(r io.Reader) {
	defer close(d.samples)
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in readSamples", slog.Any("panic", rec))
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
				d.logger.Error("reading from serial port", slog.String("error", err.Error()))
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			d.logger.Warn("failed to parse line", slog.String("line", line), slog.String("error", err.Error()))
			continue
		}

		// Never block the port reader on a slow consumer
		select {
		case d.samples <- sample:
		case <-d.ctx.Done():
			return
		default:
			d.logger.Warn("samples channel full, dropping sample")
		}
	}
}

// parseLine parses a line from the MCU into a RawSample.
// Format: unix_micros,pressure,current
// Example: 1234567890123,2048,1024
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	pressure, err := parseADC(parts[1])
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid pressure: %w", err)
	}

	current, err := parseADC(parts[2])
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid current: %w", err)
	}

	return RawSample{
		Timestamp: time.UnixMicro(timestampMicros),
		Pressure:  pressure,
		Current:   current,
	}, nil
}

func parseADC(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	if v > ADCMax {
		return 0, fmt.Errorf("out of range: %d (max %d)", v, ADCMax)
	}
	return uint16(v), nil
}
