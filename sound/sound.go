// Package sound provides a file-backed audio host: input devices play WAV or
// MP3 files and output devices record to WAV, each paced at the real block
// period. It lets the mixer run without audio hardware.
package sound

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/d1nch8g/joyner/audio"
)

const recordBitDepth = 16

type fileEntry struct {
	name string
	path string
}

// FileHost implements audio.Host over files.
type FileHost struct {
	inputs  []fileEntry
	outputs []fileEntry

	// Loop restarts input files from the beginning when they run out.
	// Otherwise an exhausted input stops delivering blocks.
	Loop bool

	// Pace overrides the callback interval. Zero means the block period
	// implied by the stream config.
	Pace time.Duration

	logger *slog.Logger
}

// NewFileHost creates a host whose devices are the given name to path maps.
// Devices are listed inputs first, each group sorted by name.
func NewFileHost(inputs, outputs map[string]string) *FileHost {
	return &FileHost{
		inputs:  sortedEntries(inputs),
		outputs: sortedEntries(outputs),
		logger:  slog.Default().With("host", "file"),
	}
}

func sortedEntries(m map[string]string) []fileEntry {
	entries := make([]fileEntry, 0, len(m))
	for name, path := range m {
		entries = append(entries, fileEntry{name: name, path: path})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

func (h *FileHost) Initialize() error {
	for _, e := range h.inputs {
		if _, err := os.Stat(e.path); err != nil {
			h.logger.Warn("input file is not readable", "device", e.name, "path", e.path, "err", err)
		}
	}
	return nil
}

func (h *FileHost) Terminate() {}

func (h *FileHost) Devices() ([]audio.Device, error) {
	devices := make([]audio.Device, 0, len(h.inputs)+len(h.outputs))
	for i, e := range h.inputs {
		devices = append(devices, audio.Device{Index: i, Name: e.name, MaxInputChannels: 1})
	}
	for i, e := range h.outputs {
		devices = append(devices, audio.Device{Index: len(h.inputs) + i, Name: e.name, MaxOutputChannels: 1})
	}
	return devices, nil
}

func (h *FileHost) entry(dev audio.Device, c audio.Capability) (fileEntry, error) {
	idx := dev.Index
	entries := h.inputs
	if c == audio.CapabilityOutput {
		idx -= len(h.inputs)
		entries = h.outputs
	}
	if idx < 0 || idx >= len(entries) || entries[idx].name != dev.Name {
		return fileEntry{}, fmt.Errorf("no %s file device %d (%q)", c, dev.Index, dev.Name)
	}
	return entries[idx], nil
}

func (h *FileHost) interval(config audio.Config) time.Duration {
	if h.Pace > 0 {
		return h.Pace
	}
	return time.Duration(float64(time.Second) * float64(config.FramesPerBuffer) / config.SampleRate)
}

func checkConfig(config audio.Config) error {
	if config.Channels != 1 {
		return fmt.Errorf("file devices are mono, got %d channels", config.Channels)
	}
	if config.FramesPerBuffer <= 0 || config.SampleRate <= 0 {
		return fmt.Errorf("invalid stream config %+v", config)
	}
	return nil
}

func (h *FileHost) OpenInput(dev audio.Device, config audio.Config, cb audio.InputCallback) (audio.Stream, error) {
	if err := checkConfig(config); err != nil {
		return nil, err
	}
	e, err := h.entry(dev, audio.CapabilityInput)
	if err != nil {
		return nil, err
	}

	samples, err := DecodeFile(e.path, int(config.SampleRate))
	if err != nil {
		return nil, err
	}

	src := &fileSource{
		samples: samples,
		block:   make([]float32, config.FramesPerBuffer),
		loop:    h.Loop,
		cb:      cb,
	}
	h.logger.Debug("opened file input", "device", e.name, "path", e.path, "frames", len(samples))
	return newPacedStream(h.interval(config), src.tick, nil), nil
}

func (h *FileHost) OpenOutput(dev audio.Device, config audio.Config, cb audio.OutputCallback) (audio.Stream, error) {
	if err := checkConfig(config); err != nil {
		return nil, err
	}
	e, err := h.entry(dev, audio.CapabilityOutput)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(e.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(e.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	sampleRate := int(config.SampleRate)
	sink := &fileSink{
		encoder: wav.NewEncoder(f, sampleRate, recordBitDepth, 1, 1),
		block:   make([]float32, config.FramesPerBuffer),
		ints: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, config.FramesPerBuffer),
			SourceBitDepth: recordBitDepth,
		},
		cb:     cb,
		logger: h.logger.With("device", e.name, "path", e.path),
	}

	release := func() error {
		encErr := sink.encoder.Close()
		if err := f.Close(); err != nil && encErr == nil {
			encErr = err
		}
		return encErr
	}
	return newPacedStream(h.interval(config), sink.tick, release), nil
}

type fileSource struct {
	samples []float32
	pos     int
	block   []float32
	loop    bool
	cb      audio.InputCallback
}

func (s *fileSource) tick() {
	if s.pos >= len(s.samples) {
		if !s.loop {
			return
		}
		s.pos = 0
	}

	n := copy(s.block, s.samples[s.pos:])
	clear(s.block[n:])
	s.pos += n
	s.cb(s.block, 0)
}

type fileSink struct {
	encoder *wav.Encoder
	block   []float32
	ints    *goaudio.IntBuffer
	cb      audio.OutputCallback
	failed  bool
	logger  *slog.Logger
}

func (s *fileSink) tick() {
	s.cb(s.block, 0)

	const full = 1<<(recordBitDepth-1) - 1
	for i, v := range s.block {
		v = max(-1, min(1, v))
		s.ints.Data[i] = int(v * full)
	}

	if err := s.encoder.Write(s.ints); err != nil && !s.failed {
		s.failed = true
		s.logger.Error("failed to write recording", "err", err)
	}
}
