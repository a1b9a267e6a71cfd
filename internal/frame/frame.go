package frame

import (
	"fmt"

	"firestige.xyz/ethresponder/internal/core"
)

// Frame sizes accepted by New.
const (
	MinFrameSize     = 128
	MaxFrameSize     = 9216
	DefaultFrameSize = 1024
)

// Frame is a fixed-capacity buffer holding one received or synthesized
// link-layer frame. Views returned by the Parse functions alias its memory.
type Frame struct {
	buf      []byte
	n        int
	consumed bool
}

// New allocates a frame with the given capacity, clamped to
// [MinFrameSize, MaxFrameSize].
func New(size int) *Frame {
	size = max(MinFrameSize, min(size, MaxFrameSize))
	return &Frame{buf: make([]byte, size)}
}

// Buffer returns the full backing buffer for a driver to fill.
func (f *Frame) Buffer() []byte { return f.buf }

// SetLength records how many bytes of the buffer hold the frame and clears
// the consumed state.
func (f *Frame) SetLength(n int) error {
	if n < 0 || n > len(f.buf) {
		return fmt.Errorf("frame length %d, capacity %d: %w", n, len(f.buf), core.ErrFrameTooSmall)
	}
	f.n = n
	f.consumed = false
	return nil
}

// Len returns the logical length.
func (f *Frame) Len() int { return f.n }

// Cap returns the buffer capacity.
func (f *Frame) Cap() int { return len(f.buf) }

// Bytes returns the logical frame, or nil once the request has been handed
// to a Builder and no reply has been committed yet.
func (f *Frame) Bytes() []byte {
	if f.consumed {
		return nil
	}
	return f.buf[:f.n]
}

// Consumed reports whether the frame content was released by Recycle.
func (f *Frame) Consumed() bool { return f.consumed }

// Truncate shrinks the logical length. Growing is not allowed.
func (f *Frame) Truncate(n int) {
	if n >= 0 && n < f.n {
		f.n = n
	}
}

// Recycle releases the request held in f and returns a builder that owns the
// buffer until it commits a reply.
func (f *Frame) Recycle() *Builder {
	f.consumed = true
	f.n = 0
	return &Builder{f: f}
}

// Reset empties the frame for reuse.
func (f *Frame) Reset() {
	f.n = 0
	f.consumed = false
}
