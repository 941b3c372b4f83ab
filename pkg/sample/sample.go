package sample

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/govac/pkg/config"
	"github.com/itohio/govac/pkg/gauge"
)

// Sample represents a processed measurement with physical values.
type Sample struct {
	Timestamp time.Time
	Pressure  float32 // kPa
	Current   float32 // A
}

// Converter is a function type that converts a RawSample channel to a Sample channel.
type Converter func(in <-chan gauge.RawSample) <-chan Sample

// NewConverter creates a converter function that transforms RawSample to Sample.
func NewConverter(cfg *config.SensorConfig, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan gauge.RawSample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for raw := range in {
				select {
				case out <- convertSample(raw, cfg):
				case <-time.After(time.Second):
					// Consumer stalled, drop the sample
				}
			}
		}()

		return out
	}
}

// convertSample converts a RawSample to Sample using the sensor calibration.
func convertSample(raw gauge.RawSample, cfg *config.SensorConfig) Sample {
	return Sample{
		Timestamp: raw.Timestamp,
		Pressure:  linear(adcToVoltage(raw.Pressure, cfg.VRef), cfg.PressureOffset, cfg.PressureSlope),
		Current:   linear(adcToVoltage(raw.Current, cfg.VRef), cfg.CurrentOffset, cfg.CurrentSlope),
	}
}

// adcToVoltage converts a 12-bit ADC reading to voltage.
func adcToVoltage(adc uint16, vref float32) float32 {
	return (float32(adc) / gauge.ADCMax) * vref
}

// linear maps a transducer voltage to its physical value, never below zero.
func linear(v, offset, slope float32) float32 {
	return math32.Max(0, (v-offset)*slope)
}
