package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/jamscribe/internal/config"
)

// SampleFormat is the device-native encoding of one sample
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota + 1
	FormatInt32
	FormatFloat32
)

// ParseSampleFormat maps a config name ("i16", "i32", "f32") to a SampleFormat
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "i16", "int16", "s16":
		return FormatInt16, nil
	case "i32", "int32", "s32":
		return FormatInt32, nil
	case "f32", "float32":
		return FormatFloat32, nil
	default:
		return 0, fmt.Errorf("unsupported sample format: %q", name)
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "i16"
	case FormatInt32:
		return "i32"
	case FormatFloat32:
		return "f32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// SampleSize returns the size of one sample in bytes
func (f SampleFormat) SampleSize() int {
	switch f {
	case FormatInt16:
		return 2
	case FormatInt32, FormatFloat32:
		return 4
	default:
		return 0
	}
}

// BitDepth returns the sample size in bits
func (f SampleFormat) BitDepth() int {
	return f.SampleSize() * 8
}

func (f SampleFormat) IsFloat() bool {
	return f == FormatFloat32
}

// BufferSizeRange is the range of frames per callback the device supports.
// Max == 0 means the range is unbounded.
type BufferSizeRange struct {
	Min uint32
	Max uint32
}

// Frames returns the fixed frames per buffer to request, or 0 to let the
// host choose.
func (r BufferSizeRange) Frames() int {
	if r.Min > 0 && r.Min == r.Max {
		return int(r.Min)
	}
	return 0
}

// StreamConfig describes the capture stream. It is fixed for the process lifetime.
type StreamConfig struct {
	Channels   uint16
	SampleRate uint32
	Format     SampleFormat
	BufferSize BufferSizeRange
}

// Validate checks the stream invariants
func (c StreamConfig) Validate() error {
	if c.Channels < 1 {
		return fmt.Errorf("channel count must be >= 1, got %d", c.Channels)
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("sample rate must be > 0")
	}
	if c.Format.SampleSize() == 0 {
		return fmt.Errorf("unknown sample format: %s", c.Format)
	}
	if c.BufferSize.Max > 0 && c.BufferSize.Min > c.BufferSize.Max {
		return fmt.Errorf("buffer size min %d exceeds max %d", c.BufferSize.Min, c.BufferSize.Max)
	}
	return nil
}

// ByteRate returns the number of bytes per second of audio in this format
func (c StreamConfig) ByteRate() int {
	return int(c.SampleRate) * int(c.Channels) * c.Format.SampleSize()
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dch %dHz %s", c.Channels, c.SampleRate, c.Format)
}

// StreamConfigFrom builds the stream configuration from the resolved config
func StreamConfigFrom(cfg *config.Config) (StreamConfig, error) {
	format, err := ParseSampleFormat(cfg.Audio.SampleFormat)
	if err != nil {
		return StreamConfig{}, err
	}

	sc := StreamConfig{
		Channels:   uint16(cfg.Audio.Channels),
		SampleRate: uint32(cfg.Audio.SampleRate),
		Format:     format,
		BufferSize: BufferSizeRange{
			Min: uint32(cfg.Audio.BufferMin),
			Max: uint32(cfg.Audio.BufferMax),
		},
	}
	if err := sc.Validate(); err != nil {
		return StreamConfig{}, err
	}
	return sc, nil
}
