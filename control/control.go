// Package control implements the line based control surface: device
// selection, start/stop, gain and mute, and status reporting.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/d1nch8g/joyner/audio"
	"github.com/d1nch8g/joyner/engine"
	"github.com/d1nch8g/joyner/mixer"
	"github.com/d1nch8g/joyner/settings"
)

var ErrUsage = errors.New("usage error")

// Pipeline is the part of the engine the control surface drives
type Pipeline interface {
	Start(vbName, micName, outName string) error
	Stop() error
	SetGain(src mixer.Source, value float64) float64
	SetMuted(src mixer.Source, muted bool)
	Controls() *mixer.Controls
	Devices() ([]audio.Device, error)
	State() engine.State
	Stats() engine.Stats
}

// Selection holds the device names chosen for each role
type Selection struct {
	VB     string
	Mic    string
	Output string
}

// Session reads commands line by line and writes human readable responses.
type Session struct {
	pipeline  Pipeline
	out       io.Writer
	selection Selection
	logger    *slog.Logger
}

// NewSession creates a session with its selection, gains and mutes taken
// from s. Gains outside a source's range are clamped.
func NewSession(p Pipeline, s settings.Settings, out io.Writer) *Session {
	p.SetGain(mixer.SourceVB, s.VBGain)
	p.SetGain(mixer.SourceMic, s.MicGain)
	p.SetMuted(mixer.SourceVB, s.VBMuted)
	p.SetMuted(mixer.SourceMic, s.MicMuted)

	return &Session{
		pipeline: p,
		out:      out,
		selection: Selection{
			VB:     s.VBInput,
			Mic:    s.MicInput,
			Output: s.Output,
		},
		logger: slog.Default().With("component", "control", "session", uuid.New()),
	}
}

// Selection returns the currently selected device names
func (s *Session) Selection() Selection {
	return s.selection
}

// Settings returns the state to persist: the selection plus the current
// gains and mutes.
func (s *Session) Settings() settings.Settings {
	p := s.pipeline.Controls().Snapshot()
	return settings.Settings{
		VBInput:  s.selection.VB,
		MicInput: s.selection.Mic,
		Output:   s.selection.Output,
		VBGain:   float64(p.VBGain),
		MicGain:  float64(p.MicGain),
		VBMuted:  p.VBMuted,
		MicMuted: p.MicMuted,
	}
}

// Run executes commands from in until it reaches EOF, a quit command or ctx
// is cancelled. Command errors are reported to the output and do not end
// the session.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := s.Execute(line)
			if err != nil {
				s.logger.Debug("command failed", "line", line, "err", err)
				s.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs one command line. It reports whether the session should end.
func (s *Session) Execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "start":
		return false, s.start(args)
	case "stop":
		return false, s.stop()
	case "select":
		return false, s.selectDevice(args)
	case "gain":
		return false, s.gain(args)
	case "mute":
		return false, s.mute(args)
	case "devices":
		return false, s.devices()
	case "status":
		s.status()
		return false, nil
	case "help":
		s.help()
		return false, nil
	case "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("%w: unknown command %q, try help", ErrUsage, cmd)
}

func (s *Session) start(args []string) error {
	switch len(args) {
	case 0:
	case 3:
		s.selection = Selection{VB: args[0], Mic: args[1], Output: args[2]}
	default:
		return fmt.Errorf("%w: start [vb mic output]", ErrUsage)
	}

	sel := s.selection
	if err := s.pipeline.Start(sel.VB, sel.Mic, sel.Output); err != nil {
		return err
	}
	s.logger.Info("pipeline started", "vb", sel.VB, "mic", sel.Mic, "output", sel.Output)
	s.printf("running\n")
	return nil
}

func (s *Session) stop() error {
	if err := s.pipeline.Stop(); err != nil {
		return err
	}
	s.printf("stopped\n")
	return nil
}

func (s *Session) selectDevice(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: select <vb|mic|out> <name>", ErrUsage)
	}
	name := strings.Join(args[1:], " ")
	switch strings.ToLower(args[0]) {
	case "vb", "cable":
		s.selection.VB = name
	case "mic", "microphone":
		s.selection.Mic = name
	case "out", "output":
		s.selection.Output = name
	default:
		return fmt.Errorf("%w: unknown role %q", ErrUsage, args[0])
	}
	s.printf("%s = %s\n", strings.ToLower(args[0]), name)
	return nil
}

func (s *Session) gain(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: gain <vb|mic> <value>", ErrUsage)
	}
	src, err := mixer.ParseSource(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: invalid gain %q", ErrUsage, args[1])
	}
	applied := s.pipeline.SetGain(src, value)
	s.printf("%s gain %.2f\n", src, applied)
	return nil
}

func (s *Session) mute(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: mute <vb|mic> [on|off|toggle]", ErrUsage)
	}
	src, err := mixer.ParseSource(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	muted := !s.pipeline.Controls().Muted(src)
	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "on":
			muted = true
		case "off":
			muted = false
		case "toggle":
		default:
			return fmt.Errorf("%w: expected on, off or toggle, got %q", ErrUsage, args[1])
		}
	}
	s.pipeline.SetMuted(src, muted)
	s.printf("%s %s\n", src, muteLabel(muted))
	return nil
}

func (s *Session) devices() error {
	devices, err := s.pipeline.Devices()
	if err != nil {
		return err
	}
	s.printf("Input devices:\n")
	for _, d := range audio.Filter(devices, audio.CapabilityInput) {
		s.printf("  [%d] %s (%d in)\n", d.Index, d.Name, d.MaxInputChannels)
	}
	s.printf("Output devices:\n")
	for _, d := range audio.Filter(devices, audio.CapabilityOutput) {
		s.printf("  [%d] %s (%d out)\n", d.Index, d.Name, d.MaxOutputChannels)
	}
	return nil
}

func (s *Session) status() {
	p := s.pipeline.Controls().Snapshot()
	st := s.pipeline.Stats()
	sel := s.selection

	s.printf("state: %s\n", s.pipeline.State())
	s.printf("vb:  %q gain %.2f %s\n", sel.VB, p.VBGain, muteLabel(p.VBMuted))
	s.printf("mic: %q gain %.2f %s\n", sel.Mic, p.MicGain, muteLabel(p.MicMuted))
	s.printf("out: %q\n", sel.Output)
	for _, src := range []struct {
		name  string
		stats engine.SourceStats
	}{{"vb", st.VB}, {"mic", st.Mic}} {
		s.printf("%s stats: captured=%d dropped=%d overflows=%d underruns=%d\n",
			src.name, src.stats.Captured, src.stats.Dropped, src.stats.Overflows, src.stats.Underruns)
	}
	s.printf("rendered=%d faults=%d output_underflows=%d\n", st.Rendered, st.RenderFaults, st.OutputUnderflows)
}

func (s *Session) help() {
	s.printf(`commands:
  devices                        list input and output devices
  select <vb|mic|out> <name>     choose a device by name or name fragment
  start [vb mic out]             start mixing with the selected devices
  stop                           stop mixing
  gain <vb|mic> <value>          set gain (vb 0-3, mic 0-1.5)
  mute <vb|mic> [on|off|toggle]  mute or unmute a source
  status                         show state, controls and counters
  quit                           save settings and exit
`)
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func muteLabel(muted bool) string {
	if muted {
		return "muted"
	}
	return "live"
}
