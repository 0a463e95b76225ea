// Package throughput estimates transfer speed in MB/s.
package throughput

import (
	"time"

	"github.com/meigma/xferwatch/core"
)

// Instant returns the speed in MB/s of loaded bytes over elapsed time.
// Elapsed is measured from the start of the transfer and never reset.
// A non-positive elapsed time yields 0.
func Instant(loaded float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return loaded / secs / core.MiB
}

// Samples is an append-only sequence of instantaneous speeds.
type Samples struct {
	values []float64
}

// Add appends a sample.
func (s *Samples) Add(v float64) {
	s.values = append(s.values, v)
}

// Average returns the arithmetic mean of all samples, 0 when there are none.
func (s *Samples) Average() float64 {
	if len(s.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.values {
		sum += v
	}
	return sum / float64(len(s.values))
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	return len(s.values)
}

// Values returns a copy of the samples in insertion order.
func (s *Samples) Values() []float64 {
	return append([]float64(nil), s.values...)
}
