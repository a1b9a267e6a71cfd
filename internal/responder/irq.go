package responder

import "sync"

// IRQ models a level interrupt line with a pending bit. Raise sets the bit
// and wakes the handler; further raises are absorbed until the handler
// acknowledges, so the handler is never re-entered.
type IRQ struct {
	mu        sync.Mutex
	pending   bool
	raised    uint64
	coalesced uint64

	line chan struct{}
}

// NewIRQ returns an idle line.
func NewIRQ() *IRQ {
	return &IRQ{line: make(chan struct{}, 1)}
}

// Raise marks the line pending. It reports false when it was pending already.
func (q *IRQ) Raise() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending {
		q.coalesced++
		return false
	}
	q.pending = true
	q.raised++
	// At most one wake token exists per pending period.
	q.line <- struct{}{}
	return true
}

// Line delivers one wake-up per pending period.
func (q *IRQ) Line() <-chan struct{} { return q.line }

// Ack clears the pending bit after the handler returned.
func (q *IRQ) Ack() {
	q.mu.Lock()
	q.pending = false
	q.mu.Unlock()
}

// Pending reports whether the line is raised and not yet acknowledged.
func (q *IRQ) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Counts returns how many raises were delivered and how many were absorbed
// by an already pending line.
func (q *IRQ) Counts() (raised, coalesced uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.raised, q.coalesced
}
