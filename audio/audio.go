package audio

import "strings"

// Config describes the shape of every stream the mixer opens.
type Config struct {
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
}

func GetDefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		FramesPerBuffer: 1024,
		Channels:        1,
	}
}

// Device is one endpoint as reported by the host's enumeration.
type Device struct {
	// Index is the host-specific position of the device in the enumeration.
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
}

// Capability is the direction a device is needed for.
type Capability int

const (
	CapabilityInput Capability = iota
	CapabilityOutput
)

func (c Capability) String() string {
	if c == CapabilityOutput {
		return "output"
	}
	return "input"
}

// Supports reports whether d has at least one channel in direction c.
func (d Device) Supports(c Capability) bool {
	if c == CapabilityOutput {
		return d.MaxOutputChannels > 0
	}
	return d.MaxInputChannels > 0
}

// Resolve returns the first device, in enumeration order, whose name contains
// name case-insensitively and which supports c.
func Resolve(devices []Device, name string, c Capability) (Device, bool) {
	needle := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) && d.Supports(c) {
			return d, true
		}
	}
	return Device{}, false
}

// Filter returns the devices that support c, keeping their order.
func Filter(devices []Device, c Capability) []Device {
	var result []Device
	for _, d := range devices {
		if d.Supports(c) {
			result = append(result, d)
		}
	}
	return result
}

// Status carries the flags a host reports alongside a callback buffer.
type Status uint

const (
	InputUnderflow Status = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
)

// InputCallback receives one captured buffer. in is only valid until the
// callback returns.
type InputCallback func(in []float32, status Status)

// OutputCallback must fill out completely before returning.
type OutputCallback func(out []float32, status Status)

// Stream is one open device stream.
type Stream interface {
	Start() error

	// Stop halts the stream and returns only once no callback is running
	// and none will run again until the next Start.
	Stop() error

	// Close releases the stream. A closed stream cannot be restarted.
	Close() error
}

// Host defines the interface for audio transports that can enumerate devices
// and open callback-driven mono streams on them
type Host interface {
	// Initialize initializes the audio system
	Initialize() error

	// Terminate terminates the audio system
	Terminate()

	// Devices lists every endpoint known to the host
	Devices() ([]Device, error)

	// OpenInput opens a capture stream on dev; cb is invoked once per buffer
	OpenInput(dev Device, config Config, cb InputCallback) (Stream, error)

	// OpenOutput opens a render stream on dev; cb is invoked once per buffer
	OpenOutput(dev Device, config Config, cb OutputCallback) (Stream, error)
}
