// Package pahost implements audio.Host on top of PortAudio.
package pahost

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/d1nch8g/joyner/audio"
)

// Host opens streams through PortAudio. Its callbacks run on
// PortAudio's real-time thread.
type Host struct{}

func New() *Host {
	return &Host{}
}

func (h *Host) Initialize() error {
	return portaudio.Initialize()
}

func (h *Host) Terminate() {
	portaudio.Terminate()
}

func (h *Host) Devices() ([]audio.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]audio.Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, audio.Device{
			Index:             info.Index,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
		})
	}
	return devices, nil
}

func (h *Host) OpenInput(dev audio.Device, config audio.Config, cb audio.InputCallback) (audio.Stream, error) {
	info, err := h.lookup(dev)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: config.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      config.SampleRate,
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		cb(in, convertFlags(flags))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

func (h *Host) OpenOutput(dev audio.Device, config audio.Config, cb audio.OutputCallback) (audio.Stream, error) {
	info, err := h.lookup(dev)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: config.Channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      config.SampleRate,
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		cb(out, convertFlags(flags))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

// lookup maps dev back to PortAudio's device info. The enumeration is read
// again so a device that vanished since resolution is reported instead of
// opening whatever now sits at that index.
func (h *Host) lookup(dev audio.Device) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, info := range infos {
		if info.Index == dev.Index && info.Name == dev.Name {
			return info, nil
		}
	}
	return nil, fmt.Errorf("device %d (%q) is no longer available", dev.Index, dev.Name)
}

func convertFlags(flags portaudio.StreamCallbackFlags) audio.Status {
	var status audio.Status
	if flags&portaudio.InputUnderflow != 0 {
		status |= audio.InputUnderflow
	}
	if flags&portaudio.InputOverflow != 0 {
		status |= audio.InputOverflow
	}
	if flags&portaudio.OutputUnderflow != 0 {
		status |= audio.OutputUnderflow
	}
	if flags&portaudio.OutputOverflow != 0 {
		status |= audio.OutputOverflow
	}
	return status
}
