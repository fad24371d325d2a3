package render

import (
	"fmt"
	"sync"
)

// Pool manages a bounded set of reusable rendering surfaces. All surfaces in
// one pool share the same fixed dimensions for the life of the batch.
//
// Acquire never blocks: when the idle queue is empty it creates a transient
// surface instead, so a chunk transiently larger than the steady-state
// capacity cannot deadlock. Release returns a surface to the idle queue only
// while the queue is below capacity; extra transient surfaces are discarded.
type Pool struct {
	mu       sync.Mutex
	idle     []*Surface
	capacity int
	width    int
	height   int
	closed   bool

	created int // total surfaces ever created, for observability
}

// NewPool creates an empty pool for surfaces of the given dimensions.
// capacity is the steady-state number of idle surfaces kept between tasks.
func NewPool(width, height, capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be positive, got %d", capacity)
	}
	if width <= 0 || height <= 0 || width > maxSurfaceDim || height > maxSurfaceDim {
		return nil, fmt.Errorf("invalid pool surface dimensions %dx%d", width, height)
	}
	return &Pool{
		idle:     make([]*Surface, 0, capacity),
		capacity: capacity,
		width:    width,
		height:   height,
	}, nil
}

// Prewarm creates up to count idle surfaces, capped at the pool capacity.
func (p *Pool) Prewarm(count int) error {
	if count > p.capacity {
		count = p.capacity
	}
	for i := 0; i < count; i++ {
		s, err := NewSurface(p.width, p.height)
		if err != nil {
			return err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return fmt.Errorf("pool is closed")
		}
		p.idle = append(p.idle, s)
		p.created++
		p.mu.Unlock()
	}
	return nil
}

// Acquire hands out an idle surface, or creates a transient one when the
// idle queue is empty. A creation failure is fatal only to the requesting
// task, never to the pool.
func (p *Pool) Acquire() (*Surface, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.created++
	p.mu.Unlock()

	return NewSurface(p.width, p.height)
}

// Release returns a surface to the idle queue, or discards it when the
// queue is already at capacity.
func (p *Pool) Release(s *Surface) {
	if s == nil {
		return
	}
	s.Clear()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.capacity {
		return // discard
	}
	p.idle = append(p.idle, s)
}

// Cleanup discards all idle surfaces and marks the pool closed. It is safe
// to call more than once; only the first call has an effect.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.idle = nil
}

// IdleCount reports the number of surfaces currently in the idle queue.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// CreatedCount reports the total number of surfaces the pool has created.
func (p *Pool) CreatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}
