package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/d1nch8g/joyner/audio"
	"github.com/d1nch8g/joyner/buffer"
	"github.com/d1nch8g/joyner/mixer"
)

// State is the lifecycle state of the engine
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// EngineConfig holds the configuration for the mixing engine
type EngineConfig struct {
	Audio       audio.Config
	BufferDepth int
}

// SourceStats counts what happened to one input source
type SourceStats struct {
	Captured  uint64 // blocks delivered by the capture callback
	Dropped   uint64 // blocks evicted from a full ring
	Overflows uint64 // capture callbacks flagged with a device overflow/underflow
	Underruns uint64 // render cycles that substituted silence
}

// Stats is a snapshot of the engine counters
type Stats struct {
	VB               SourceStats
	Mic              SourceStats
	Rendered         uint64
	RenderFaults     uint64
	OutputUnderflows uint64
}

type sourceCounters struct {
	captured  atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64
	underruns atomic.Uint64
}

func (c *sourceCounters) snapshot() SourceStats {
	return SourceStats{
		Captured:  c.captured.Load(),
		Dropped:   c.dropped.Load(),
		Overflows: c.overflows.Load(),
		Underruns: c.underruns.Load(),
	}
}

type openStream struct {
	role    string
	stream  audio.Stream
	logger  *slog.Logger
	started bool
}

// Engine captures two input devices, mixes them and renders the result to an
// output device
type Engine struct {
	config    EngineConfig
	blockSize int
	host      audio.Host
	controls  *mixer.Controls
	buffers   *buffer.Pair
	mixer     *mixer.Mixer
	logger    *slog.Logger

	// Owned by the render callback. Only one output stream exists at a time
	// and Stop joins it before the next Start.
	vbBlock  []float32
	micBlock []float32

	counters         [2]sourceCounters
	rendered         atomic.Uint64
	renderFaults     atomic.Uint64
	outputUnderflows atomic.Uint64

	mu      sync.Mutex
	state   State
	streams []*openStream
}

// NewEngine creates a new mixing engine instance
func NewEngine(config EngineConfig, host audio.Host, controls *mixer.Controls) *Engine {
	defaults := audio.GetDefaultConfig()
	if config.Audio.SampleRate == 0 {
		config.Audio.SampleRate = defaults.SampleRate
	}
	if config.Audio.FramesPerBuffer == 0 {
		config.Audio.FramesPerBuffer = defaults.FramesPerBuffer
	}
	if config.Audio.Channels == 0 {
		config.Audio.Channels = defaults.Channels
	}
	if config.BufferDepth == 0 {
		config.BufferDepth = 10 // Default to 10 blocks per source
	}
	if controls == nil {
		controls = mixer.NewControls()
	}

	blockSize := config.Audio.FramesPerBuffer * config.Audio.Channels
	return &Engine{
		config:    config,
		blockSize: blockSize,
		host:      host,
		controls:  controls,
		buffers:   buffer.NewPair(config.BufferDepth, blockSize),
		mixer:     mixer.New(blockSize),
		logger:    slog.Default().With("component", "engine"),
		vbBlock:   make([]float32, blockSize),
		micBlock:  make([]float32, blockSize),
	}
}

// Start resolves the three device names and starts streaming. On failure no
// stream is left open and the engine stays idle.
func (e *Engine) Start(vbName, micName, outName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return ErrAlreadyRunning
	}
	e.state = StateResolving

	if err := e.start(vbName, micName, outName); err != nil {
		e.state = StateIdle
		return err
	}

	e.state = StateRunning
	return nil
}

func (e *Engine) start(vbName, micName, outName string) error {
	var missing []string
	for _, n := range []struct{ role, name string }{
		{"vb input", vbName},
		{"mic input", micName},
		{"output", outName},
	} {
		if strings.TrimSpace(n.name) == "" {
			missing = append(missing, n.role)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: please select all devices (missing %s)", ErrValidation, strings.Join(missing, ", "))
	}

	devices, err := e.host.Devices()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStream, err)
	}

	vbDev, vbOK := audio.Resolve(devices, vbName, audio.CapabilityInput)
	micDev, micOK := audio.Resolve(devices, micName, audio.CapabilityInput)
	outDev, outOK := audio.Resolve(devices, outName, audio.CapabilityOutput)
	var notFound []string
	if !vbOK {
		notFound = append(notFound, fmt.Sprintf("input %q", vbName))
	}
	if !micOK {
		notFound = append(notFound, fmt.Sprintf("input %q", micName))
	}
	if !outOK {
		notFound = append(notFound, fmt.Sprintf("output %q", outName))
	}
	if len(notFound) > 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, strings.Join(notFound, ", "))
	}

	logger := e.logger.With("run", uuid.New())
	logger.Info("starting streams",
		"vb", vbDev.Name,
		"mic", micDev.Name,
		"output", outDev.Name,
		"sampleRate", e.config.Audio.SampleRate,
		"framesPerBuffer", e.config.Audio.FramesPerBuffer,
	)

	// Blocks left over from a previous run are stale.
	e.buffers.Reset()

	opens := []struct {
		role string
		dev  audio.Device
		open func() (audio.Stream, error)
	}{
		{"vb", vbDev, func() (audio.Stream, error) {
			return e.host.OpenInput(vbDev, e.config.Audio, e.captureInto(mixer.SourceVB))
		}},
		{"mic", micDev, func() (audio.Stream, error) {
			return e.host.OpenInput(micDev, e.config.Audio, e.captureInto(mixer.SourceMic))
		}},
		{"output", outDev, func() (audio.Stream, error) {
			return e.host.OpenOutput(outDev, e.config.Audio, e.render)
		}},
	}

	for _, o := range opens {
		stream, err := o.open()
		if err != nil {
			e.rollback(logger)
			return fmt.Errorf("%w: failed to open %s stream on %q: %w", ErrStream, o.role, o.dev.Name, err)
		}
		streamLogger := logger.With("stream", o.role, "stream_id", uuid.New())
		streamLogger.Debug("stream opened", "device", o.dev.Name)
		e.streams = append(e.streams, &openStream{role: o.role, stream: stream, logger: streamLogger})
	}

	for _, s := range e.streams {
		if err := s.stream.Start(); err != nil {
			e.rollback(logger)
			return fmt.Errorf("%w: failed to start %s stream: %w", ErrStream, s.role, err)
		}
		s.started = true
		s.logger.Info("stream started")
	}

	return nil
}

func (e *Engine) rollback(logger *slog.Logger) {
	if err := e.teardown(); err != nil {
		logger.Error("errors while rolling back streams", "err", err)
	}
}

// teardown stops and closes every open stream in start order. Each stream
// is handled independently so one failure does not leak the others.
func (e *Engine) teardown() error {
	var errs []error
	for _, s := range e.streams {
		if s.started {
			if err := s.stream.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop %s stream: %w", s.role, err))
			}
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s stream: %w", s.role, err))
		}
		s.logger.Debug("stream released")
	}
	e.streams = nil
	return errors.Join(errs...)
}

// Stop stops and releases all streams. It is safe to call at any time,
// including when nothing was started; the engine is idle afterwards.
// Callbacks in flight complete before Stop returns.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle && len(e.streams) == 0 {
		return nil
	}

	err := e.teardown()
	e.state = StateIdle
	if err != nil {
		e.logger.Error("errors during shutdown", "err", err)
	} else {
		e.logger.Info("engine stopped")
	}
	return err
}

// captureInto returns the capture callback for src. It copies the buffer
// into the source ring and never blocks beyond the ring lock.
func (e *Engine) captureInto(src mixer.Source) audio.InputCallback {
	c := &e.counters[src]
	return func(in []float32, status audio.Status) {
		if status&(audio.InputOverflow|audio.InputUnderflow) != 0 {
			c.overflows.Add(1)
		}
		if e.buffers.Push(int(src), in) {
			c.dropped.Add(1)
		}
		c.captured.Add(1)
	}
}

// render is the output callback. It always leaves out fully written.
func (e *Engine) render(out []float32, status audio.Status) {
	defer func() {
		if r := recover(); r != nil {
			e.fault(out, r)
		}
	}()

	if status&audio.OutputUnderflow != 0 {
		e.outputUnderflows.Add(1)
	}
	if len(out) != e.blockSize {
		e.fault(out, fmt.Errorf("%w: output buffer has %d samples, want %d", mixer.ErrShape, len(out), e.blockSize))
		return
	}

	vb, mic := e.buffers.PopBoth(e.vbBlock, e.micBlock)
	e.admit(mixer.SourceVB, e.vbBlock, vb)
	e.admit(mixer.SourceMic, e.micBlock, mic)

	if err := e.mixer.Mix(out, e.vbBlock, e.micBlock, e.controls.Snapshot()); err != nil {
		e.fault(out, err)
		return
	}
	e.rendered.Add(1)
}

// admit replaces a missing or wrongly sized block with silence.
func (e *Engine) admit(src mixer.Source, block []float32, r buffer.Result) {
	if r.OK && r.N == len(block) {
		return
	}
	clear(block)
	e.counters[src].underruns.Add(1)
}

// faultLogEvery limits render fault logging to the first fault and then one
// line per this many faults, about two seconds of blocks at 48 kHz.
const faultLogEvery = 100

func (e *Engine) fault(out []float32, cause any) {
	clear(out)
	n := e.renderFaults.Add(1)
	if n == 1 || n%faultLogEvery == 0 {
		e.logger.Error("render cycle failed, output silenced", "err", &RenderFault{Cause: cause}, "faults", n)
	}
}

// SetGain sets the gain of src, clamped to its range, and returns the
// applied value
func (e *Engine) SetGain(src mixer.Source, value float64) float64 {
	return e.controls.SetGain(src, value)
}

// SetMuted mutes or unmutes src
func (e *Engine) SetMuted(src mixer.Source, muted bool) {
	e.controls.SetMuted(src, muted)
}

// Controls returns the gain and mute state read by the render callback
func (e *Engine) Controls() *mixer.Controls {
	return e.controls
}

// Devices lists the devices of the underlying host
func (e *Engine) Devices() ([]audio.Device, error) {
	return e.host.Devices()
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning returns whether the engine is currently streaming
func (e *Engine) IsRunning() bool {
	return e.State() == StateRunning
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		VB:               e.counters[mixer.SourceVB].snapshot(),
		Mic:              e.counters[mixer.SourceMic].snapshot(),
		Rendered:         e.rendered.Load(),
		RenderFaults:     e.renderFaults.Load(),
		OutputUnderflows: e.outputUnderflows.Load(),
	}
}

func (e *Engine) Config() EngineConfig {
	return e.config
}
