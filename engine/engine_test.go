package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d1nch8g/joyner/audio"
	"github.com/d1nch8g/joyner/mixer"
)

const testBlockSize = 1024

var errBusy = errors.New("device busy")

type fakeStream struct {
	name     string
	startErr error
	started  bool
	stopped  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) running() bool {
	return s.started && !s.stopped
}

// fakeHost hands the registered callbacks to the test instead of running a
// device clock.
type fakeHost struct {
	mu        sync.Mutex
	devices   []audio.Device
	inputs    map[string]audio.InputCallback
	output    audio.OutputCallback
	streams   []*fakeStream
	failOpen  map[string]error
	failStart map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		devices: []audio.Device{
			{Index: 0, Name: "Speakers (Realtek Audio)", MaxOutputChannels: 2},
			{Index: 1, Name: "Microphone (USB Audio)", MaxInputChannels: 1},
			{Index: 2, Name: "CABLE Output (VB-Audio Virtual Cable)", MaxInputChannels: 8},
			{Index: 3, Name: "CABLE Input (VB-Audio Virtual Cable)", MaxOutputChannels: 8},
		},
		inputs:    map[string]audio.InputCallback{},
		failOpen:  map[string]error{},
		failStart: map[string]error{},
	}
}

func (h *fakeHost) Initialize() error { return nil }
func (h *fakeHost) Terminate()        {}

func (h *fakeHost) Devices() ([]audio.Device, error) {
	return h.devices, nil
}

func (h *fakeHost) newStream(name string) (*fakeStream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failOpen[name]; err != nil {
		return nil, err
	}
	s := &fakeStream{name: name, startErr: h.failStart[name]}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *fakeHost) OpenInput(dev audio.Device, config audio.Config, cb audio.InputCallback) (audio.Stream, error) {
	s, err := h.newStream(dev.Name)
	if err != nil {
		return nil, err
	}
	h.inputs[dev.Name] = cb
	return s, nil
}

func (h *fakeHost) OpenOutput(dev audio.Device, config audio.Config, cb audio.OutputCallback) (audio.Stream, error) {
	s, err := h.newStream(dev.Name)
	if err != nil {
		return nil, err
	}
	h.output = cb
	return s, nil
}

func (h *fakeHost) capture(name string, block []float32) {
	h.inputs[name](block, 0)
}

func (h *fakeHost) render() []float32 {
	out := filled(9) // garbage the callback must overwrite
	h.output(out, 0)
	return out
}

func (h *fakeHost) running() int {
	n := 0
	for _, s := range h.streams {
		if s.running() {
			n++
		}
	}
	return n
}

const (
	vbName  = "cable output"
	micName = "microphone"
	outName = "cable input"
	vbDev   = "CABLE Output (VB-Audio Virtual Cable)"
	micDev  = "Microphone (USB Audio)"
)

func filled(v float32) []float32 {
	b := make([]float32, testBlockSize)
	for i := range b {
		b[i] = v
	}
	return b
}

func assertAll(t *testing.T, want float32, got []float32) {
	t.Helper()
	for i, v := range got {
		if !assert.InDelta(t, want, v, 1e-6, "sample %d", i) {
			return
		}
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeHost) {
	t.Helper()
	host := newFakeHost()
	return NewEngine(EngineConfig{}, host, nil), host
}

func startedEngine(t *testing.T) (*Engine, *fakeHost) {
	t.Helper()
	e, host := newTestEngine(t)
	require.NoError(t, e.Start(vbName, micName, outName))
	return e, host
}

func TestNewEngineDefaults(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Equal(t, audio.GetDefaultConfig(), e.Config().Audio)
	assert.Equal(t, 10, e.Config().BufferDepth)
	assert.Equal(t, StateIdle, e.State())
}

func TestStartOpensThreeStreams(t *testing.T) {
	e, host := startedEngine(t)
	assert.Equal(t, StateRunning, e.State())
	assert.True(t, e.IsRunning())
	require.Len(t, host.streams, 3)
	assert.Equal(t, 3, host.running())
	assert.Contains(t, host.inputs, vbDev)
	assert.Contains(t, host.inputs, micDev)
	assert.NotNil(t, host.output)
}

func TestStartRequiresAllNames(t *testing.T) {
	cases := [][3]string{
		{"", micName, outName},
		{vbName, "", outName},
		{vbName, micName, ""},
		{"  ", micName, outName},
	}
	for _, c := range cases {
		e, host := newTestEngine(t)
		err := e.Start(c[0], c[1], c[2])
		assert.ErrorIs(t, err, ErrValidation, "%q", c)
		assert.Empty(t, host.streams, "%q", c)
		assert.Equal(t, StateIdle, e.State())
	}
}

func TestStartDeviceNotFound(t *testing.T) {
	e, host := newTestEngine(t)
	err := e.Start(vbName, "webcam", outName)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "webcam")
	assert.Empty(t, host.streams)
	assert.Equal(t, StateIdle, e.State())
}

func TestStartRespectsCapability(t *testing.T) {
	e, _ := newTestEngine(t)
	// The speakers have no input channels and the microphone no outputs.
	assert.ErrorIs(t, e.Start("speakers", micName, outName), ErrDeviceNotFound)
	assert.ErrorIs(t, e.Start(vbName, micName, "microphone"), ErrDeviceNotFound)
}

func TestStartTwiceIsRejected(t *testing.T) {
	e, host := startedEngine(t)
	assert.ErrorIs(t, e.Start(vbName, micName, outName), ErrAlreadyRunning)
	assert.Len(t, host.streams, 3)
	assert.Equal(t, StateRunning, e.State())
}

func TestStopIsIdempotent(t *testing.T) {
	e, host := newTestEngine(t)
	assert.NoError(t, e.Stop())
	assert.Equal(t, StateIdle, e.State())

	require.NoError(t, e.Start(vbName, micName, outName))
	assert.NoError(t, e.Stop())
	assert.NoError(t, e.Stop())
	assert.Equal(t, StateIdle, e.State())
	for _, s := range host.streams {
		assert.True(t, s.stopped, s.name)
		assert.True(t, s.closed, s.name)
	}
}

func TestRestartAfterStop(t *testing.T) {
	e, host := startedEngine(t)
	host.capture(vbDev, filled(0.5))
	require.NoError(t, e.Stop())

	require.NoError(t, e.Start(vbName, micName, outName))
	assert.Len(t, host.streams, 6)
	assert.Equal(t, 3, host.running())

	// The block captured before the restart is not replayed.
	assertAll(t, 0, host.render())
}

func TestOpenFailureRollsBack(t *testing.T) {
	e, host := newTestEngine(t)
	host.failOpen["CABLE Input (VB-Audio Virtual Cable)"] = errBusy

	err := e.Start(vbName, micName, outName)
	assert.ErrorIs(t, err, ErrStream)
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, StateIdle, e.State())
	require.Len(t, host.streams, 2)
	for _, s := range host.streams {
		assert.False(t, s.started, s.name)
		assert.True(t, s.closed, s.name)
	}

	delete(host.failOpen, "CABLE Input (VB-Audio Virtual Cable)")
	assert.NoError(t, e.Start(vbName, micName, outName))
}

func TestStartFailureRollsBack(t *testing.T) {
	e, host := newTestEngine(t)
	host.failStart[micDev] = errBusy

	err := e.Start(vbName, micName, outName)
	assert.ErrorIs(t, err, ErrStream)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 0, host.running())
	require.Len(t, host.streams, 3)
	assert.True(t, host.streams[0].started)
	assert.True(t, host.streams[0].stopped)
	for _, s := range host.streams {
		assert.True(t, s.closed, s.name)
	}
}

func TestRenderLoudMixClips(t *testing.T) {
	e, host := startedEngine(t)
	e.SetGain(mixer.SourceVB, 2.0)
	e.SetGain(mixer.SourceMic, 0.5)

	host.capture(vbDev, filled(0.5))
	host.capture(micDev, filled(1.0))
	assertAll(t, 1.0, host.render())
}

func TestRenderMutedMic(t *testing.T) {
	e, host := startedEngine(t)
	e.SetGain(mixer.SourceVB, 1.0)
	e.SetMuted(mixer.SourceMic, true)

	host.capture(vbDev, filled(0.3))
	host.capture(micDev, filled(0.8))
	assertAll(t, 0.3, host.render())
}

func TestRenderBothEmptyIsSilence(t *testing.T) {
	e, host := startedEngine(t)
	assertAll(t, 0, host.render())

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.VB.Underruns)
	assert.Equal(t, uint64(1), stats.Mic.Underruns)
	assert.Equal(t, uint64(1), stats.Rendered)
}

func TestRenderDoesNotRepeatStaleBlocks(t *testing.T) {
	_, host := startedEngine(t)
	host.capture(vbDev, filled(0.4))

	assertAll(t, 0.4, host.render())
	assertAll(t, 0, host.render())
}

func TestRenderIsFIFOPerSource(t *testing.T) {
	_, host := startedEngine(t)
	for _, v := range []float32{0.1, 0.2, 0.3} {
		host.capture(vbDev, filled(v))
	}
	host.capture(micDev, filled(0.05))

	assertAll(t, 0.15, host.render())
	assertAll(t, 0.2, host.render())
	assertAll(t, 0.3, host.render())
}

func TestRenderDropsOldestWhenBehind(t *testing.T) {
	e, host := startedEngine(t)
	for i := 1; i <= 12; i++ {
		host.capture(vbDev, filled(float32(i)/100))
	}

	stats := e.Stats()
	assert.Equal(t, uint64(12), stats.VB.Captured)
	assert.Equal(t, uint64(2), stats.VB.Dropped)

	assertAll(t, 0.03, host.render())
}

func TestRenderReplacesWrongSizedBlocks(t *testing.T) {
	e, host := startedEngine(t)
	host.capture(vbDev, make([]float32, 512))
	host.capture(micDev, filled(0.25))

	assertAll(t, 0.25, host.render())
	assert.Equal(t, uint64(1), e.Stats().VB.Underruns)
}

func TestRenderFaultOnWrongOutputSize(t *testing.T) {
	e, host := startedEngine(t)
	host.capture(vbDev, filled(0.5))

	out := make([]float32, 100)
	for i := range out {
		out[i] = 9
	}
	assert.NotPanics(t, func() { host.output(out, 0) })
	for _, v := range out {
		require.Zero(t, v)
	}
	assert.Equal(t, uint64(1), e.Stats().RenderFaults)
}

func TestRenderRecoversFromPanics(t *testing.T) {
	e, host := startedEngine(t)
	host.capture(vbDev, filled(0.5))
	e.mixer = nil

	var out []float32
	assert.NotPanics(t, func() { out = host.render() })
	assertAll(t, 0, out)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.RenderFaults)
	assert.Zero(t, stats.Rendered)
}

func TestRenderFaultLoggingIsThrottled(t *testing.T) {
	e, host := startedEngine(t)
	var logs bytes.Buffer
	e.logger = slog.New(slog.NewTextHandler(&logs, nil))

	for range 2 * faultLogEvery {
		host.output(make([]float32, 100), 0)
	}

	assert.Equal(t, uint64(2*faultLogEvery), e.Stats().RenderFaults)
	assert.Equal(t, 3, strings.Count(logs.String(), "render cycle failed"))
}

func TestCaptureCountsOverflows(t *testing.T) {
	e, host := startedEngine(t)
	host.inputs[micDev](filled(0.1), audio.InputOverflow)
	host.inputs[micDev](filled(0.1), 0)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Mic.Overflows)
	assert.Equal(t, uint64(2), stats.Mic.Captured)
}

func TestCaptureCopiesInput(t *testing.T) {
	_, host := startedEngine(t)
	in := filled(0.5)
	host.capture(vbDev, in)
	for i := range in {
		in[i] = 0.9
	}
	assertAll(t, 0.5, host.render())
}

func TestRenderFaultUnwrap(t *testing.T) {
	f := &RenderFault{Cause: mixer.ErrShape}
	assert.ErrorIs(t, f, mixer.ErrShape)
	assert.Nil(t, (&RenderFault{Cause: "boom"}).Unwrap())
	assert.Contains(t, f.Error(), "render fault")
}
