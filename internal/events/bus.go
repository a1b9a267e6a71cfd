package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"
	"github.com/tevino/abool"

	"firestige.xyz/ethresponder/internal/log"
)

var (
	ErrBusClosed = errors.New("event bus is closed")
	ErrQueueFull = errors.New("event queue is full")
)

// Handler consumes one event.
type Handler func(ctx context.Context, e *Event) error

// Stats is a snapshot of bus counters.
type Stats struct {
	PublishedCount int64
	ProcessedCount int64
	DroppedCount   int64
	FailedCount    int64
	QueuedCount    []int
}

type partition struct {
	id    int
	queue chan *Event
}

// Bus is an in-memory, partitioned event queue. Events are routed to a
// partition by consistent hashing of their key, so events sharing a key are
// handled in order. Publish never blocks: a full partition drops the event.
type Bus struct {
	partitions []*partition
	nodes      []string
	ring       *hashring.HashRing

	mu          sync.RWMutex
	subscribers map[string][]Handler

	ctx    context.Context
	cancel context.CancelFunc
	closed *abool.AtomicBool
	wg     sync.WaitGroup

	published int64
	processed int64
	dropped   int64
	failed    int64
}

// NewBus starts a bus with partitionCount workers, each with a queue of
// queueSize events.
func NewBus(partitionCount, queueSize int) *Bus {
	partitionCount = max(partitionCount, 1)
	queueSize = max(queueSize, 1)

	b := &Bus{
		partitions:  make([]*partition, partitionCount),
		nodes:       make([]string, partitionCount),
		subscribers: make(map[string][]Handler),
		closed:      abool.New(),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	for i := 0; i < partitionCount; i++ {
		b.nodes[i] = "partition-" + strconv.Itoa(i)
	}
	b.ring = hashring.New(b.nodes)

	for i := 0; i < partitionCount; i++ {
		b.partitions[i] = &partition{id: i, queue: make(chan *Event, queueSize)}
		b.wg.Add(1)
		go b.runPartition(b.partitions[i])
	}
	return b
}

// Subscribe registers h for topic. Several handlers may share a topic; each
// receives every event.
func (b *Bus) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.IsSet() {
		return ErrBusClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], h)
	return nil
}

// Publish enqueues e without blocking.
func (b *Bus) Publish(e *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.IsSet() {
		return ErrBusClosed
	}
	p := b.partitions[b.partitionID(e.Key)]
	select {
	case p.queue <- e:
		atomic.AddInt64(&b.published, 1)
		return nil
	default:
		atomic.AddInt64(&b.dropped, 1)
		return fmt.Errorf("partition %d: %w", p.id, ErrQueueFull)
	}
}

// Close stops accepting events, lets queued events drain and waits for the
// workers. ctx bounds the drain; when it expires in-flight handlers are
// cancelled.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed.IsSet() {
		b.mu.Unlock()
		return nil
	}
	b.closed.Set()
	for _, p := range b.partitions {
		close(p.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (b *Bus) Stats() *Stats {
	s := &Stats{
		PublishedCount: atomic.LoadInt64(&b.published),
		ProcessedCount: atomic.LoadInt64(&b.processed),
		DroppedCount:   atomic.LoadInt64(&b.dropped),
		FailedCount:    atomic.LoadInt64(&b.failed),
		QueuedCount:    make([]int, len(b.partitions)),
	}
	for i, p := range b.partitions {
		s.QueuedCount[i] = len(p.queue)
	}
	return s
}

func (b *Bus) partitionID(key string) int {
	node, ok := b.ring.GetNode(key)
	if !ok {
		return 0
	}
	for i, n := range b.nodes {
		if n == node {
			return i
		}
	}
	return 0
}

func (b *Bus) handlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[topic]
}

func (b *Bus) runPartition(p *partition) {
	defer b.wg.Done()
	logger := log.GetLogger().WithField("partition", p.id)

	for e := range p.queue {
		hs := b.handlers(e.Topic)
		if len(hs) == 0 {
			logger.Debugf("no handler for topic %s", e.Topic)
			continue
		}
		for _, h := range hs {
			if err := h(b.ctx, e); err != nil {
				atomic.AddInt64(&b.failed, 1)
				logger.WithError(err).WithField("topic", e.Topic).Warn("event handler failed")
			}
		}
		atomic.AddInt64(&b.processed, 1)
	}
}
