package sample

import (
	"time"
)

// NewAveragingConverter creates a moving-average filter over already-converted Samples.
// An averaged sample is emitted every outputInterval while input is flowing,
// carrying the most recent timestamp.
func NewAveragingConverter(windowSize int, bufSize int, outputInterval time.Duration) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}
	if outputInterval <= 0 {
		outputInterval = 100 * time.Millisecond
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			var buffer []Sample
			fresh := false
			ticker := time.NewTicker(outputInterval)
			defer ticker.Stop()

			for {
				select {
				case s, ok := <-in:
					if !ok {
						if fresh && len(buffer) > 0 {
							select {
							case out <- averageSamples(buffer):
							default:
							}
						}
						return
					}

					buffer = append(buffer, s)
					if len(buffer) > windowSize {
						buffer = buffer[1:]
					}
					fresh = true

				case <-ticker.C:
					if !fresh || len(buffer) == 0 {
						continue
					}
					select {
					case out <- averageSamples(buffer):
						fresh = false
					default:
					}
				}
			}
		}()

		return out
	}
}

// averageSamples averages a slice of Samples.
func averageSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumPressure, sumCurrent float32
	for _, s := range samples {
		sumPressure += s.Pressure
		sumCurrent += s.Current
	}

	n := float32(len(samples))
	return Sample{
		Timestamp: samples[len(samples)-1].Timestamp,
		Pressure:  sumPressure / n,
		Current:   sumCurrent / n,
	}
}
