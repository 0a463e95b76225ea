package xferwatch

import "github.com/meigma/xferwatch/core"

// Sentinel errors for common failure conditions.
// Re-exported from core package.
var (
	// ErrInvalidOracle indicates a size oracle entry or file is unusable.
	ErrInvalidOracle = core.ErrInvalidOracle

	// ErrInvalidStep indicates the progress step is outside 1..100.
	ErrInvalidStep = core.ErrInvalidStep

	// ErrNotOpened indicates an event request was sent before being opened.
	ErrNotOpened = core.ErrNotOpened

	// ErrAlreadySent indicates an event request was sent twice.
	ErrAlreadySent = core.ErrAlreadySent

	// ErrPathTraversal indicates a saved file name would escape its directory.
	ErrPathTraversal = core.ErrPathTraversal
)
