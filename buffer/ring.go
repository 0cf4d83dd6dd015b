package buffer

// Ring is a bounded FIFO of fixed-size audio blocks. Slots are allocated once
// in NewRing, so Push and Pop never allocate.
//
// Ring is not safe for concurrent use on its own; Pair provides the locking.
type Ring struct {
	slots     [][]float32
	lens      []int
	head      int // index of the oldest block
	count     int
	blockSize int
}

func NewRing(depth, blockSize int) *Ring {
	if depth < 1 {
		depth = 1
	}
	slots := make([][]float32, depth)
	for i := range slots {
		slots[i] = make([]float32, blockSize)
	}
	return &Ring{
		slots:     slots,
		lens:      make([]int, depth),
		blockSize: blockSize,
	}
}

// Push copies block to the tail. If the ring is full the oldest block is
// evicted first, and evicted reports that.
//
// The original length of block is remembered even when it does not match the
// block size, so the consumer can reject malformed blocks.
func (r *Ring) Push(block []float32) (evicted bool) {
	if r.count == len(r.slots) {
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		evicted = true
	}

	tail := (r.head + r.count) % len(r.slots)
	copy(r.slots[tail], block)
	r.lens[tail] = len(block)
	r.count++
	return evicted
}

// Pop copies the oldest block into dst and returns its original length.
// ok is false when the ring is empty.
func (r *Ring) Pop(dst []float32) (n int, ok bool) {
	if r.count == 0 {
		return 0, false
	}

	n = r.lens[r.head]
	copy(dst, r.slots[r.head][:min(n, r.blockSize)])
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return n, true
}

func (r *Ring) Len() int {
	return r.count
}

func (r *Ring) Cap() int {
	return len(r.slots)
}

func (r *Ring) BlockSize() int {
	return r.blockSize
}

func (r *Ring) Reset() {
	r.head = 0
	r.count = 0
}
