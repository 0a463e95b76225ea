package xferwatch

import "github.com/meigma/xferwatch/core"

// Record is a single (label, value) pair reported for a tracked transfer.
// Re-exported from core package.
type Record = core.Record

// RecordFunc receives records as they are produced. It is called from the
// goroutine executing the request, so implementations must be efficient and
// safe for concurrent use.
type RecordFunc = core.RecordFunc

// Summary describes a completed transfer.
type Summary = core.Summary

// SummaryFunc receives a summary for each completed transfer.
type SummaryFunc = core.SummaryFunc

// Snapshot is a point-in-time copy of the aggregate state.
type Snapshot = core.Snapshot

// Config is the effective matching and reporting configuration.
type Config = core.Config

// Transport identifies which transport carried a transfer.
type Transport = core.Transport

// Transports.
const (
	TransportStream = core.TransportStream
	TransportEvent  = core.TransportEvent
)

// Record labels, in the order a transfer emits them.
const (
	LabelStatus          = core.LabelStatus
	LabelRequestHeaders  = core.LabelRequestHeaders
	LabelQueryParams     = core.LabelQueryParams
	LabelStartTime       = core.LabelStartTime
	LabelResponseStatus  = core.LabelResponseStatus
	LabelResponseHeaders = core.LabelResponseHeaders
	LabelProgress        = core.LabelProgress
	LabelCompleted       = core.LabelCompleted
)
