package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Capture CaptureConfig `yaml:"capture"`
	Export  ExportConfig  `yaml:"export"`
	Radio   RadioConfig   `yaml:"radio"`
	Uplink  UplinkConfig  `yaml:"uplink"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains the sensor MCU serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
}

// SensorConfig converts 12-bit ADC readings into physical units.
// Both channels are linear: value = (volts - offset) * slope.
type SensorConfig struct {
	VRef           float32 `yaml:"vref"`
	PressureSlope  float32 `yaml:"pressure_slope"`  // kPa per volt
	PressureOffset float32 `yaml:"pressure_offset"` // volts at 0 kPa
	CurrentSlope   float32 `yaml:"current_slope"`   // amperes per volt
	CurrentOffset  float32 `yaml:"current_offset"`  // volts at 0 A
}

// CaptureConfig contains sample buffer parameters.
type CaptureConfig struct {
	MaxPoints      int           `yaml:"max_points"`
	AverageSamples int           `yaml:"average_samples"` // Moving average window; 0 or 1 disables averaging
	AverageRate    time.Duration `yaml:"average_rate"`    // Output interval of the averaged stream
}

// ExportConfig contains the storage export pipeline parameters.
type ExportConfig struct {
	Dir            string        `yaml:"dir"`          // Directory on the storage device, e.g. "/export"
	StorageRoot    string        `yaml:"storage_root"` // Host directory backing the storage device
	QueueDepth     int           `yaml:"queue_depth"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	FlushThreshold int           `yaml:"flush_threshold"`
	GuardMargin    int           `yaml:"guard_margin"`
	AckWindow      time.Duration `yaml:"ack_window"`
}

// RadioConfig contains the radio power controller configuration.
type RadioConfig struct {
	Port           string        `yaml:"port"` // Empty selects the mocked link
	Mode           string        `yaml:"mode"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MinTxPower     int8          `yaml:"min_tx_power"` // dBm
	MaxTxPower     int8          `yaml:"max_tx_power"` // dBm
	ActivityWindow time.Duration `yaml:"activity_window"`
	AdaptInterval  time.Duration `yaml:"adapt_interval"`
}

// UplinkConfig contains the MQTT uplink configuration.
type UplinkConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// JournalConfig contains the export journal configuration.
type JournalConfig struct {
	Path string `yaml:"path"` // Empty disables the journal
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	BasePressure     float32       `yaml:"base_pressure"`     // kPa at pump start
	UltimatePressure float32       `yaml:"ultimate_pressure"` // kPa the pump settles at
	PumpDownTau      time.Duration `yaml:"pump_down_tau"`     // Pump-down time constant
	PumpCurrent      float32       `yaml:"pump_current"`      // Steady pump current (A)
	NoiseLevel       float32       `yaml:"noise_level"`       // Noise level (V)
	SampleRate       time.Duration `yaml:"sample_rate"`       // Sample rate
	RSSI             int           `yaml:"rssi"`              // Simulated radio RSSI (dBm)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
		},
		Sensor: SensorConfig{
			VRef:           3.3,
			PressureSlope:  40.0, // 0.5-3.0 V spans 0-100 kPa
			PressureOffset: 0.5,
			CurrentSlope:   10.0, // 100 mV/A shunt amplifier
			CurrentOffset:  0.0,
		},
		Capture: CaptureConfig{
			MaxPoints:   3600,
			AverageRate: time.Second,
		},
		Export: ExportConfig{
			Dir:            "/export",
			StorageRoot:    "sdcard",
			QueueDepth:     10,
			SendTimeout:    200 * time.Millisecond,
			FlushThreshold: 3500,
			GuardMargin:    48,
			AckWindow:      2 * time.Second,
		},
		Radio: RadioConfig{
			Port:           "",
			Mode:           "balanced",
			IdleTimeout:    30 * time.Second,
			MinTxPower:     2,
			MaxTxPower:     20,
			ActivityWindow: time.Second,
			AdaptInterval:  30 * time.Second,
		},
		Uplink: UplinkConfig{
			Enabled:         false,
			Broker:          "tcp://localhost:1883",
			ClientID:        "govac",
			TopicPrefix:     "govac",
			PublishInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Mock: MockConfig{
			BasePressure:     101.3,
			UltimatePressure: 2.0,
			PumpDownTau:      20 * time.Second,
			PumpCurrent:      1.8,
			NoiseLevel:       0.002,
			SampleRate:       100 * time.Millisecond, // 10 Hz
			RSSI:             -62,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Radio.MinTxPower > c.Radio.MaxTxPower {
		return fmt.Errorf("radio: min_tx_power %d exceeds max_tx_power %d", c.Radio.MinTxPower, c.Radio.MaxTxPower)
	}
	if c.Export.FlushThreshold+c.Export.GuardMargin > 4096 {
		return fmt.Errorf("export: flush_threshold %d plus guard_margin %d exceeds the 4096 byte payload",
			c.Export.FlushThreshold, c.Export.GuardMargin)
	}
	if c.Export.GuardMargin < 48 {
		return fmt.Errorf("export: guard_margin %d is below the minimum of 48 bytes", c.Export.GuardMargin)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}

	if c.Sensor.VRef == 0 {
		c.Sensor.VRef = def.Sensor.VRef
	}
	if c.Sensor.PressureSlope == 0 {
		c.Sensor.PressureSlope = def.Sensor.PressureSlope
	}
	if c.Sensor.CurrentSlope == 0 {
		c.Sensor.CurrentSlope = def.Sensor.CurrentSlope
	}

	if c.Capture.MaxPoints <= 0 {
		c.Capture.MaxPoints = def.Capture.MaxPoints
	}
	if c.Capture.AverageRate <= 0 {
		c.Capture.AverageRate = def.Capture.AverageRate
	}

	if c.Export.Dir == "" {
		c.Export.Dir = def.Export.Dir
	}
	if c.Export.StorageRoot == "" {
		c.Export.StorageRoot = def.Export.StorageRoot
	}
	if c.Export.QueueDepth <= 0 {
		c.Export.QueueDepth = def.Export.QueueDepth
	}
	if c.Export.SendTimeout == 0 {
		c.Export.SendTimeout = def.Export.SendTimeout
	}
	if c.Export.FlushThreshold == 0 {
		c.Export.FlushThreshold = def.Export.FlushThreshold
	}
	if c.Export.GuardMargin == 0 {
		c.Export.GuardMargin = def.Export.GuardMargin
	}
	if c.Export.AckWindow == 0 {
		c.Export.AckWindow = def.Export.AckWindow
	}

	if c.Radio.Mode == "" {
		c.Radio.Mode = def.Radio.Mode
	}
	if c.Radio.IdleTimeout == 0 {
		c.Radio.IdleTimeout = def.Radio.IdleTimeout
	}
	if c.Radio.MinTxPower == 0 && c.Radio.MaxTxPower == 0 {
		c.Radio.MinTxPower = def.Radio.MinTxPower
		c.Radio.MaxTxPower = def.Radio.MaxTxPower
	}
	if c.Radio.ActivityWindow == 0 {
		c.Radio.ActivityWindow = def.Radio.ActivityWindow
	}
	if c.Radio.AdaptInterval == 0 {
		c.Radio.AdaptInterval = def.Radio.AdaptInterval
	}

	if c.Uplink.Broker == "" {
		c.Uplink.Broker = def.Uplink.Broker
	}
	if c.Uplink.ClientID == "" {
		c.Uplink.ClientID = def.Uplink.ClientID
	}
	if c.Uplink.TopicPrefix == "" {
		c.Uplink.TopicPrefix = def.Uplink.TopicPrefix
	}
	if c.Uplink.PublishInterval == 0 {
		c.Uplink.PublishInterval = def.Uplink.PublishInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.PumpDownTau == 0 {
		c.Mock.PumpDownTau = def.Mock.PumpDownTau
	}
	if c.Mock.BasePressure == 0 {
		c.Mock.BasePressure = def.Mock.BasePressure
	}
	if c.Mock.RSSI == 0 {
		c.Mock.RSSI = def.Mock.RSSI
	}
}
