// Package pagepool implements a pre-allocated, DMA-mapped page supply for a
// receive ring. Pages are recycled back into the pool instead of being
// freed and reallocated on every packet, the way the ring refill path
// expects.
package pagepool

import (
	"errors"
	"sync"

	"github.com/open-nic/onic-driver/dma"
)

// Direction is the DMA mapping direction a page was prepared for.
type Direction int

const (
	// FromDevice is the direction used when no hook program is loaded:
	// the CPU only ever reads what the device wrote.
	FromDevice Direction = iota
	// Bidirectional is used when a hook program is loaded, since the
	// hook may inspect and rewrite the frame before it is handed up or
	// retransmitted.
	Bidirectional
)

// ErrExhausted is returned when a pool has no free pages. Callers on the Rx
// poll path treat this as a non-fatal condition: the batch is cut short and
// normal refill resumes on a later poll.
var ErrExhausted = errors.New("pagepool: exhausted")

// Page is one pool-owned buffer handed to a receive descriptor.
type Page struct {
	pool *Pool

	addr uint64 // bus address of the page, as programmed into a descriptor
	buf  []byte // host view of the same memory

	// inFlight is true while the page is posted to the device or held by
	// a buffer handed up the stack; a page is never owned by both at
	// once.
	inFlight bool
}

// Addr is the page's DMA bus address.
func (p *Page) Addr() uint64 { return p.addr }

// Bytes is the page's host-addressable backing storage.
func (p *Page) Bytes() []byte { return p.buf }

// Data returns the portion of the page after the pool's configured
// headroom, up to length n — the view a hook program or stack packet sees.
func (p *Page) Data(n int) []byte {
	h := p.pool.headroom
	return p.buf[h : h+n]
}

// Pool is a fixed-capacity set of DMA-mapped pages sized to a receive
// ring's real descriptor count.
type Pool struct {
	mu sync.Mutex

	region    *dma.Region
	pageSize  int
	headroom  int
	direction Direction

	all  []*Page
	free []*Page
}

// New pre-allocates count pages of pageSize bytes each from region, with
// headroom bytes reserved at the front of every page for hook program use
// (Ethernet/IP/TCP header room), per direction.
func New(region *dma.Region, count, pageSize, headroom int, direction Direction) *Pool {
	p := &Pool{
		region:    region,
		pageSize:  pageSize,
		headroom:  headroom,
		direction: direction,
		all:       make([]*Page, 0, count),
		free:      make([]*Page, 0, count),
	}

	for i := 0; i < count; i++ {
		addr, buf := region.Reserve(pageSize, pageSize)
		pg := &Page{pool: p, addr: addr, buf: buf}
		p.all = append(p.all, pg)
		p.free = append(p.free, pg)
	}

	return p
}

// Direction reports the DMA direction pages in this pool were prepared for.
func (p *Pool) Direction() Direction { return p.direction }

// Headroom is the byte offset into every page reserved ahead of packet
// data.
func (p *Pool) Headroom() int { return p.headroom }

// Get removes a page from the free list for posting to a descriptor.
func (p *Pool) Get() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, ErrExhausted
	}

	pg := p.free[n-1]
	p.free = p.free[:n-1]
	pg.inFlight = true

	return pg, nil
}

// Put returns a page to the free list. Recycling a page whose contents have
// been handed up the stack requires the caller to have released any other
// reference first — the pool does not reference-count.
func (p *Pool) Put(pg *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pg.inFlight = false
	p.free = append(p.free, pg)
}

// Available is the number of pages currently free.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.free)
}

// Destroy releases every page's DMA allocation back to the region,
// including pages still posted to the device. Teardown only happens after
// the owning queue's contexts are cleared, so the device can no longer
// write to them.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.all {
		p.region.Release(pg.addr)
	}
	p.all = nil
	p.free = nil
}
