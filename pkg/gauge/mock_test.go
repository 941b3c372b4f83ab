package gauge

import (
	"testing"
	"time"

	"github.com/itohio/govac/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil, nil)
	def := config.Default()

	assert.NotNil(t, dev)
	assert.Equal(t, def.Mock, *dev.cfg)
	assert.Equal(t, def.Sensor, *dev.sensor)
	assert.False(t, dev.IsConnected())
}

func TestMock_ConnectTwice(t *testing.T) {
	dev := NewMock(nil, nil)
	defer dev.Close()

	assert.NoError(t, dev.Connect())
	err := dev.Connect()
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestMock_CloseNotConnected(t *testing.T) {
	dev := NewMock(nil, nil)
	assert.NoError(t, dev.Close())
}

func TestMock_PumpDownDecreasesPressure(t *testing.T) {
	dev := NewMock(nil, nil)
	now := time.Now()

	start := dev.generateSample(now, 0)
	later := dev.generateSample(now, 60*time.Second)

	assert.Greater(t, start.Pressure, later.Pressure)
	assert.Greater(t, start.Current, later.Current)
}

func TestVoltageToADC(t *testing.T) {
	testCases := []struct {
		name    string
		voltage float32
		wantADC uint16
	}{
		{"negative voltage", -1.0, 0},
		{"zero voltage", 0.0, 0},
		{"1.0V", 1.0, 1240},
		{"max voltage", 3.3, 4095},
		{"above max voltage", 5.0, 4095},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantADC, voltageToADC(tc.voltage, 3.3))
		})
	}
}

// TestMock_GracefulShutdown tests that the mock closes the samples channel
// when Close() is called.
func TestMock_GracefulShutdown(t *testing.T) {
	cfg := config.Default().Mock
	cfg.SampleRate = 5 * time.Millisecond

	mock := NewMock(&cfg, nil)
	err := mock.Connect()
	assert.NoError(t, err)

	samples := mock.Samples()

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range samples {
			received++
			if received == 3 {
				go mock.Close()
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Samples channel did not close within timeout")
	}

	assert.GreaterOrEqual(t, received, 3, "Should receive samples before channel closes")

	_, ok := <-samples
	assert.False(t, ok, "Channel should be closed")
	assert.False(t, mock.IsConnected())
}
