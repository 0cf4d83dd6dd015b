// Package mixer implements the gain, sum and hard clip stage of the render
// path, and the shared gain/mute controls it reads.
package mixer

import (
	"errors"
	"fmt"

	"github.com/tphakala/simd/f32"
)

var ErrShape = errors.New("block shape mismatch")

// Mixer owns the scratch space for one render stream. It must only be used
// from one goroutine at a time.
type Mixer struct {
	blockSize int
	vb        []float32
	mic       []float32
}

func New(blockSize int) *Mixer {
	return &Mixer{
		blockSize: blockSize,
		vb:        make([]float32, blockSize),
		mic:       make([]float32, blockSize),
	}
}

func (m *Mixer) BlockSize() int {
	return m.blockSize
}

// Mix writes clip(vb*p.VBGain + mic*p.MicGain, -1, 1) into out. A muted source
// contributes nothing whatever its gain or contents. All three slices must
// have exactly the block size; vb and mic are not modified.
func (m *Mixer) Mix(out, vb, mic []float32, p Params) error {
	if len(out) != m.blockSize || len(vb) != m.blockSize || len(mic) != m.blockSize {
		return fmt.Errorf("%w: out=%d vb=%d mic=%d, want %d",
			ErrShape, len(out), len(vb), len(mic), m.blockSize)
	}

	m.scale(m.vb, vb, p.VBGain, p.VBMuted)
	m.scale(m.mic, mic, p.MicGain, p.MicMuted)

	for i := range out {
		out[i] = Clip(m.vb[i] + m.mic[i])
	}
	return nil
}

func (m *Mixer) scale(dst, src []float32, gain float32, muted bool) {
	if muted {
		clear(dst)
		return
	}
	f32.Scale(dst, src, gain)
}

// Clip limits s to [-1, 1]. NaN becomes silence.
func Clip(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case s != s:
		return 0
	}
	return s
}
