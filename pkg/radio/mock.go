package radio

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrSimulated is the error returned by MockLink when failures are injected.
var ErrSimulated = errors.New("simulated link failure")

// MockLink is an in-memory Link. It records every call and can be told to fail.
type MockLink struct {
	mu        sync.Mutex
	sleep     SleepLevel
	txPower   int8
	rssi      int
	jitter    int
	connected bool
	calls     []string

	failSleep   bool
	failTxPower bool
	failRSSI    bool
}

var _ Link = (*MockLink)(nil)

// NewMockLink creates a connected mock link reporting rssi.
func NewMockLink(rssi int) *MockLink {
	return &MockLink{rssi: rssi, connected: true}
}

// SetRSSI changes the simulated signal strength.
func (m *MockLink) SetRSSI(rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rssi = rssi
}

// SetJitter makes RSSI readings vary uniformly by up to ±jitter dBm.
func (m *MockLink) SetJitter(jitter int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jitter = max(0, jitter)
}

// FailSleep makes SetSleep fail while enabled.
func (m *MockLink) FailSleep(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSleep = fail
}

// FailTxPower makes SetTxPower fail while enabled.
func (m *MockLink) FailTxPower(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTxPower = fail
}

// FailRSSI makes RSSI fail while enabled.
func (m *MockLink) FailRSSI(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRSSI = fail
}

// Calls returns the recorded calls, e.g. "sleep=max" or "tx=20".
func (m *MockLink) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Sleep returns the last applied sleep level.
func (m *MockLink) Sleep() SleepLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleep
}

// TxPower returns the last applied transmit power.
func (m *MockLink) TxPower() int8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txPower
}

func (m *MockLink) SetSleep(level SleepLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSleep {
		return ErrSimulated
	}
	m.sleep = level
	m.calls = append(m.calls, "sleep="+level.String())
	return nil
}

func (m *MockLink) SetTxPower(dbm int8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTxPower {
		return ErrSimulated
	}
	m.txPower = dbm
	m.calls = append(m.calls, fmt.Sprintf("tx=%d", dbm))
	return nil
}

func (m *MockLink) RSSI() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRSSI {
		return 0, ErrSimulated
	}
	if !m.connected {
		return 0, ErrLinkDown
	}
	rssi := m.rssi
	if m.jitter > 0 {
		rssi += rand.Intn(2*m.jitter+1) - m.jitter
	}
	return rssi, nil
}

func (m *MockLink) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockLink) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.calls = append(m.calls, "connect")
	return nil
}

func (m *MockLink) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.calls = append(m.calls, "disconnect")
	return nil
}
