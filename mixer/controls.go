package mixer

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// Source identifies one of the two mixer inputs.
type Source int

const (
	// SourceVB is the secondary source, typically a virtual cable.
	SourceVB Source = iota
	// SourceMic is the microphone.
	SourceMic
)

const (
	MaxVBGain  = 3.0
	MaxMicGain = 1.5
)

func (s Source) String() string {
	switch s {
	case SourceVB:
		return "vb"
	case SourceMic:
		return "mic"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// MaxGain returns the upper bound of the gain range of s.
func (s Source) MaxGain() float64 {
	if s == SourceMic {
		return MaxMicGain
	}
	return MaxVBGain
}

func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vb", "cable", "vb-cable":
		return SourceVB, nil
	case "mic", "microphone":
		return SourceMic, nil
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

// Params is a snapshot of the controls taken once per render cycle.
type Params struct {
	VBGain   float32
	MicGain  float32
	VBMuted  bool
	MicMuted bool
}

// Controls holds the gain and mute of each source. Every value is its own
// atomic word: a reader may see a gain change one cycle before a mute change
// made at the same time, which is fine for independent knobs.
type Controls struct {
	gains [2]atomic.Uint32 // float32 bits
	muted [2]atomic.Bool
}

func NewControls() *Controls {
	c := &Controls{}
	c.SetGain(SourceVB, 1.0)
	c.SetGain(SourceMic, 1.0)
	return c
}

// SetGain clamps value into the range of src, stores it and returns the value
// actually applied. NaN is treated as zero.
func (c *Controls) SetGain(src Source, value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		value = 0
	}
	value = math.Min(value, src.MaxGain())
	c.gains[src].Store(math.Float32bits(float32(value)))
	return value
}

func (c *Controls) Gain(src Source) float32 {
	return math.Float32frombits(c.gains[src].Load())
}

func (c *Controls) SetMuted(src Source, muted bool) {
	c.muted[src].Store(muted)
}

func (c *Controls) Muted(src Source) bool {
	return c.muted[src].Load()
}

func (c *Controls) Snapshot() Params {
	return Params{
		VBGain:   c.Gain(SourceVB),
		MicGain:  c.Gain(SourceMic),
		VBMuted:  c.Muted(SourceVB),
		MicMuted: c.Muted(SourceMic),
	}
}
