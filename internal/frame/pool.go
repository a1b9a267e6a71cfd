package frame

import "context"

// Pool hands out a fixed set of frames. Get blocks while every frame is in
// flight.
type Pool struct {
	free chan *Frame
}

// NewPool allocates count frames of the given size. count is clamped to at
// least one.
func NewPool(count, size int) *Pool {
	count = max(count, 1)
	p := &Pool{free: make(chan *Frame, count)}
	for i := 0; i < count; i++ {
		p.free <- New(size)
	}
	return p
}

// Get borrows a frame, waiting until one is returned or ctx is done.
func (p *Pool) Get(ctx context.Context) (*Frame, error) {
	select {
	case f := <-p.free:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryGet borrows a frame if one is free.
func (p *Pool) TryGet() (*Frame, bool) {
	select {
	case f := <-p.free:
		return f, true
	default:
		return nil, false
	}
}

// Put resets f and returns it to the pool.
func (p *Pool) Put(f *Frame) {
	f.Reset()
	select {
	case p.free <- f:
	default:
	}
}

// Available returns the number of frames not in flight.
func (p *Pool) Available() int { return len(p.free) }

// Capacity returns the number of frames owned by the pool.
func (p *Pool) Capacity() int { return cap(p.free) }
