// Package radio manages the wireless link's duty cycling and transmit power.
package radio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for a power mode outside the known set.
var ErrInvalidMode = errors.New("invalid power mode")

// Mode is a named bundle of sleep behaviour and transmit power ceiling.
type Mode int

const (
	AlwaysOn Mode = iota
	Balanced
	PowerSave
	DeepSleepReady
)

var modeNames = [...]string{
	AlwaysOn:       "always_on",
	Balanced:       "balanced",
	PowerSave:      "power_save",
	DeepSleepReady: "deep_sleep_ready",
}

// Valid reports whether m is one of the four power modes.
func (m Mode) Valid() bool {
	return m >= AlwaysOn && m <= DeepSleepReady
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a mode name such as "balanced". Dashes and case are ignored.
func ParseMode(s string) (Mode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Activity is a coarse classification of recent packet rate.
type Activity int

const (
	Idle Activity = iota
	Low
	Medium
	High
)

func (a Activity) String() string {
	switch a {
	case Idle:
		return "idle"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Activity) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// classify maps packets per activity window to an activity level.
func classify(rate uint32) Activity {
	switch {
	case rate == 0:
		return Idle
	case rate < 5:
		return Low
	case rate < 20:
		return Medium
	default:
		return High
	}
}

// SleepLevel is the modem duty-cycling level.
type SleepLevel int

const (
	SleepNone SleepLevel = iota
	SleepMin
	SleepMax
)

func (l SleepLevel) String() string {
	switch l {
	case SleepNone:
		return "none"
	case SleepMin:
		return "min"
	case SleepMax:
		return "max"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l SleepLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Link is the radio hardware as seen by the Controller.
type Link interface {
	// SetSleep sets the modem duty-cycling level.
	SetSleep(level SleepLevel) error
	// SetTxPower sets the transmit power in dBm.
	SetTxPower(dbm int8) error
	// RSSI returns the signal strength of the current association in dBm.
	RSSI() (int, error)
	// Connected reports whether the link is associated.
	Connected() bool
	// Connect re-establishes a dropped association.
	Connect() error
	// Disconnect drops the association.
	Disconnect() error
}
