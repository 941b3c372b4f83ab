//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	adcPressure machine.ADC
	adcCurrent  machine.ADC
	uart        = machine.UART0

	// ADC averaging - running sums and counts
	pressureSum uint32
	currentSum  uint32
	sampleCount int

	// Timing
	lastADCRead time.Time

	// Serial input: "P\n" pauses streaming, "S\n" resumes it
	paused       bool
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	PIN_PRESSURE_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_CURRENT_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcPressure = machine.ADC{Pin: PIN_PRESSURE_ADC}
	adcCurrent = machine.ADC{Pin: PIN_CURRENT_ADC}

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	adcPressure.Configure(adcConfig)
	adcCurrent.Configure(adcConfig)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()
	PIN_LED.High()

	for {
		now := time.Now()

		processSerial()

		// Read both channels at the same time and rate
		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			readADCs()
			lastADCRead = now
		}

		if sampleCount >= NUM_SAMPLES {
			if !paused {
				outputAveragedValues()
			}
			pressureSum = 0
			currentSum = 0
			sampleCount = 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func readADCs() {
	pressureSum += uint32(adcPressure.Get() >> (16 - ADC_RESOLUTION))
	currentSum += uint32(adcCurrent.Get() >> (16 - ADC_RESOLUTION))
	sampleCount++
}

func outputAveragedValues() {
	n := uint32(sampleCount)
	if n == 0 {
		n = 1
	}
	pressureAvg := uint16(pressureSum / n)
	currentAvg := uint16(currentSum / n)

	timestampMicros := time.Now().UnixNano() / 1000

	// Output format: "unix_micros,pressure,current\n"
	// Example: "1234567890123,2048,1024\n"
	print(timestampMicros)
	print(",")
	print(pressureAvg)
	print(",")
	print(currentAvg)
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				handleCommand(serialBuffer[0])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func handleCommand(cmd byte) {
	switch cmd {
	case 'P':
		paused = true
		PIN_LED.Low()
	case 'S':
		paused = false
		PIN_LED.High()
	}
}
