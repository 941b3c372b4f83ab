package gauge

import (
	"context"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/govac/pkg/config"
)

// Mock simulates a gauge MCU attached to a pump-down run for testing and development.
type Mock struct {
	cfg    *config.MockConfig
	sensor *config.SensorConfig

	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	startTime time.Time
}

// NewMock creates a new mocked gauge.
func NewMock(cfg *config.MockConfig, sensor *config.SensorConfig) *Mock {
	def := config.Default()
	if cfg == nil {
		cfg = &def.Mock
	}
	if sensor == nil {
		sensor = &def.Sensor
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:       cfg,
		sensor:    sensor,
		samples:   make(chan RawSample, DefaultBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
		done:      make(chan struct{}),
	}
}

// Connect simulates connecting to the device and starts the pump-down.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	m.connected = true
	m.startTime = time.Now()

	go m.generateSamples()

	return nil
}

// Close stops the mocked device and waits for the generator to close the samples channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	<-m.done
	return nil
}

// Samples returns the channel for reading samples.
func (m *Mock) Samples() <-chan RawSample {
	return m.samples
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// generateSamples generates simulated samples.
func (m *Mock) generateSamples() {
	defer close(m.done)
	defer close(m.samples)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.RLock()
			elapsed := now.Sub(m.startTime)
			m.mu.RUnlock()

			sample := m.generateSample(now, elapsed)
			select {
			case m.samples <- sample:
			case <-m.ctx.Done():
				return
			default:
				// Channel full, skip
			}
		}
	}
}

// generateSample models an exponential pump-down and a decaying motor inrush current.
func (m *Mock) generateSample(now time.Time, elapsed time.Duration) RawSample {
	t := float32(elapsed.Seconds())
	tau := float32(m.cfg.PumpDownTau.Seconds())

	pressure := m.cfg.UltimatePressure + (m.cfg.BasePressure-m.cfg.UltimatePressure)*math32.Exp(-t/tau)
	current := m.cfg.PumpCurrent * (1 + 2*math32.Exp(-t/2))

	noise := (math32.Sin(t*7.3) + math32.Cos(t*11.9)) * m.cfg.NoiseLevel * 0.5

	pressureV := pressure/m.sensor.PressureSlope + m.sensor.PressureOffset + noise
	currentV := current/m.sensor.CurrentSlope + m.sensor.CurrentOffset + noise

	return RawSample{
		Timestamp: now,
		Pressure:  voltageToADC(pressureV, m.sensor.VRef),
		Current:   voltageToADC(currentV, m.sensor.VRef),
	}
}

// voltageToADC converts a voltage to a clamped 12-bit ADC reading.
func voltageToADC(v, vref float32) uint16 {
	val := (v / vref) * ADCMax
	if val < 0 {
		val = 0
	} else if val > ADCMax {
		val = ADCMax
	}
	return uint16(val)
}
