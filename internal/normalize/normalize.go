// Package normalize converts raw byte counts into reported byte counts and
// completion percentages.
package normalize

import "github.com/meigma/xferwatch/core"

// Oracle looks up the expected size of a URL.
type Oracle interface {
	Lookup(url string) (int64, bool)
}

// Result is a normalized observation.
type Result struct {
	// Loaded is the byte count to report. Equal to the raw count unless
	// Corrected is true.
	Loaded float64
	// Percent is Loaded relative to the declared total. Only meaningful
	// when HasPercent is true. It is not clamped and may exceed 100.
	Percent float64
	// HasPercent is false when the declared total is unknown.
	HasPercent bool
	// Corrected is true when the oracle correction factor was applied.
	Corrected bool
}

// Normalize computes the reported byte count and percentage for raw bytes
// out of a declared total. A declared total <= 0 is unknown.
//
// When correction is active and the oracle knows the URL, raw bytes are
// scaled by declared/oracle so a transport that declares one total but
// streams bytes relative to the other still reports a percentage near
// [0, 100]. The oracle is consulted on every call.
func Normalize(raw, declared int64, url string, cfg core.Config, oracle Oracle) Result {
	if declared <= 0 {
		return Result{Loaded: float64(raw)}
	}

	if cfg.CorrectionActive() && oracle != nil {
		if expected, ok := oracle.Lookup(url); ok && expected > 0 {
			factor := float64(declared) / float64(expected)
			loaded := float64(raw) * factor
			return Result{
				Loaded:     loaded,
				Percent:    loaded / float64(declared) * 100,
				HasPercent: true,
				Corrected:  true,
			}
		}
	}

	return Result{
		Loaded:     float64(raw),
		Percent:    float64(raw) / float64(declared) * 100,
		HasPercent: true,
	}
}

// Bucket floors percent to a multiple of step.
func Bucket(percent float64, step int) int {
	if step <= 0 || percent <= 0 {
		return 0
	}
	return int(percent/float64(step)) * step
}
