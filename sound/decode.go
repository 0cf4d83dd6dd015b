package sound

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio file")
	ErrSampleRate        = errors.New("sample rate mismatch")
)

// DecodeFile reads a WAV or MP3 file and returns its samples as mono float32
// in [-1, 1]. Multi-channel audio is averaged down to one channel. The file
// must already be at sampleRate.
func DecodeFile(path string, sampleRate int) ([]float32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path, sampleRate)
	case ".mp3":
		return decodeMP3(path, sampleRate)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func decodeWAV(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file: %s", ErrUnsupportedFormat, path)
	}
	// Only signed integer PCM scales correctly below. 8-bit WAV is unsigned
	// and IEEE float data would be read as integers.
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: %s uses WAV format %d, want integer PCM", ErrUnsupportedFormat, path, decoder.WavAudioFormat)
	}
	if decoder.BitDepth <= 8 {
		return nil, fmt.Errorf("%w: %s is %d-bit, want 16, 24 or 32-bit PCM", ErrUnsupportedFormat, path, decoder.BitDepth)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	format := buf.Format
	if format == nil || decoder.BitDepth == 0 {
		return nil, fmt.Errorf("%w: missing format in %s", ErrUnsupportedFormat, path)
	}
	if format.SampleRate != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, want %d Hz", ErrSampleRate, path, format.SampleRate, sampleRate)
	}

	channels := max(format.NumChannels, 1)
	scale := float32(int64(1) << (decoder.BitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return samples, nil
}

// go-mp3 always yields interleaved 16-bit little-endian stereo.
func decodeMP3(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}
	if decoder.SampleRate() != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, want %d Hz", ErrSampleRate, path, decoder.SampleRate(), sampleRate)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	const bytesPerFrame = 4
	samples := make([]float32, len(raw)/bytesPerFrame)
	for i := range samples {
		l := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		samples[i] = (float32(l) + float32(r)) / (2 * 32768)
	}
	return samples, nil
}
