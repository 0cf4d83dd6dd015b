package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means a required device name was empty.
	ErrValidation = errors.New("validation error")
	// ErrDeviceNotFound means a name matched no device with the needed
	// capability.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrStream means the transport failed to open or start a stream.
	ErrStream = errors.New("stream error")
	// ErrAlreadyRunning is returned by Start until Stop is called.
	ErrAlreadyRunning = errors.New("engine is already running")
)

// RenderFault describes a render cycle that could not be completed. It never
// leaves the render callback; it is logged and counted.
type RenderFault struct {
	Cause any
}

func (f *RenderFault) Error() string {
	return fmt.Sprintf("render fault: %v", f.Cause)
}

func (f *RenderFault) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}
