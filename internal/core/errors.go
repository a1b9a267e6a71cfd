// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Handlers wrap them with fmt.Errorf("...: %w") and callers
// classify with errors.Is.
var (
	// Frame decoding errors
	ErrMalformedFrame = errors.New("ethresponder: malformed frame")
	ErrWrongKind      = errors.New("ethresponder: wrong message kind")
	ErrBadChecksum    = errors.New("ethresponder: bad checksum")

	// Frame buffer errors
	ErrFrameConsumed = errors.New("ethresponder: frame already recycled")
	ErrFrameTooSmall = errors.New("ethresponder: reply does not fit frame buffer")

	// Reply construction errors
	ErrCacheMiss = errors.New("ethresponder: no link address for destination")

	// Driver errors
	ErrTimeout      = errors.New("ethresponder: driver receive timeout")
	ErrDriverClosed = errors.New("ethresponder: driver closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("ethresponder: invalid configuration")
)
