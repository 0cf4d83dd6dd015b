package buffer

import "sync"

// Result describes one popped slot.
type Result struct {
	// N is the length of the block as it was pushed.
	N int
	// OK is false when the ring had nothing to give.
	OK bool
}

// Pair is two rings, one per input source, behind a single mutex.
//
// The lock is only held for the copy in or out of a slot, so producers and
// the consumer never wait on each other for longer than one block copy.
type Pair struct {
	mu    sync.Mutex
	rings [2]*Ring
}

func NewPair(depth, blockSize int) *Pair {
	return &Pair{
		rings: [2]*Ring{
			NewRing(depth, blockSize),
			NewRing(depth, blockSize),
		},
	}
}

// Push enqueues block on ring i (0 or 1), evicting the oldest block if full.
func (p *Pair) Push(i int, block []float32) (evicted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rings[i].Push(block)
}

// Pop dequeues the oldest block of ring i into dst.
func (p *Pair) Pop(i int, dst []float32) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.rings[i].Pop(dst)
	return Result{N: n, OK: ok}
}

// PopBoth dequeues one block from each ring under a single acquisition of the
// lock.
func (p *Pair) PopBoth(dst0, dst1 []float32) (r0, r1 Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r0.N, r0.OK = p.rings[0].Pop(dst0)
	r1.N, r1.OK = p.rings[1].Pop(dst1)
	return r0, r1
}

func (p *Pair) Len(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rings[i].Len()
}

func (p *Pair) Cap() int {
	return p.rings[0].Cap()
}

func (p *Pair) BlockSize() int {
	return p.rings[0].BlockSize()
}

// Reset drops everything queued in both rings.
func (p *Pair) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rings[0].Reset()
	p.rings[1].Reset()
}
