package xferwatch

import "github.com/meigma/xferwatch/core"

// SizeOracle returns the expected size of a URL. It is consulted on every
// progress observation when correction is active.
type SizeOracle interface {
	Lookup(url string) (int64, bool)
}

// Sink persists summaries of completed transfers.
// Re-exported from core package.
type Sink = core.Sink
