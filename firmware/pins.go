//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC read interval in milliseconds (same for both channels)
	NUM_SAMPLES        = 20 // Number of samples to average per output line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// ADC pins
	PIN_PRESSURE_ADC = machine.A1  // Pressure transducer output
	PIN_CURRENT_ADC  = machine.A10 // Pump current shunt amplifier

	// Pump running indicator
	PIN_LED = machine.LED

	// Serial configuration
	// Line format: "unix_micros,pressure,current\n"
	// Example: "1234567890123456,4095,4095\n" = 27 bytes max per line
	// 50 outputs/sec * 27 bytes/line = 1,350 bytes/sec
	// 115200 baud 8N1 carries 11,520 bytes/sec, ~8.5x headroom
	UART_BAUD_RATE = 115200
)
