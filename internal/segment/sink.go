package segment

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/jamscribe/internal/audio"
)

// ErrSinkClosed is returned when finalizing a sink a second time
var ErrSinkClosed = errors.New("sink already finalized")

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// wavWriter is the open state of a sink
type wavWriter struct {
	file    *os.File
	encoder *wav.Encoder
	scratch *goaudio.IntBuffer
}

// Sink writes one segment's samples into a WAV file. Write is called from the
// device callback and never blocks; Finalize is called by the controller.
type Sink struct {
	path   string
	config audio.StreamConfig
	state  *Guard[*wavWriter]

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewSink creates (or truncates) the file at path and writes the WAV header
// for the stream configuration.
func NewSink(path string, cfg audio.StreamConfig) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}

	format := wavFormatPCM
	if cfg.Format.IsFloat() {
		format = wavFormatFloat
	}
	encoder := wav.NewEncoder(file, int(cfg.SampleRate), cfg.Format.BitDepth(), int(cfg.Channels), format)

	w := &wavWriter{
		file:    file,
		encoder: encoder,
		scratch: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: int(cfg.Channels),
				SampleRate:  int(cfg.SampleRate),
			},
			SourceBitDepth: cfg.Format.BitDepth(),
		},
	}

	// The encoder emits the RIFF/fmt/data headers on its first write
	if err := encoder.Write(w.scratch); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return &Sink{
		path:   path,
		config: cfg,
		state:  NewGuard(w),
	}, nil
}

// Path returns the file the sink writes to
func (s *Sink) Path() string {
	return s.path
}

// Write appends the buffer to the file. If the finalize path holds the lock
// the whole buffer is dropped; after finalize it is a no-op. Only whole
// frames are encoded, a trailing partial frame is discarded. It reports
// whether the samples were written.
func (s *Sink) Write(buf audio.Buffer) bool {
	if buf == nil || buf.Len() == 0 {
		return true
	}
	frames := buf.Len() - buf.Len()%int(s.config.Channels)

	var ok bool
	acquired := s.state.TryWith(func(w **wavWriter) {
		if *w == nil {
			return
		}
		(*w).fill(buf, s.config)
		// encoding errors are not recoverable from the callback
		if err := (*w).encoder.Write((*w).scratch); err != nil {
			return
		}
		ok = true
	})

	if !acquired {
		s.dropped.Add(uint64(buf.Len()))
		return false
	}
	if ok {
		s.written.Add(uint64(frames))
	}
	return ok
}

// Finalize patches the header sizes, closes the file and moves the sink to
// the absent state. Further writes are ignored.
func (s *Sink) Finalize() error {
	var err error
	s.state.With(func(w **wavWriter) {
		if *w == nil {
			err = ErrSinkClosed
			return
		}
		encErr := (*w).encoder.Close()
		closeErr := (*w).file.Close()
		*w = nil

		if encErr != nil {
			err = fmt.Errorf("failed to finalize WAV file: %w", encErr)
		} else if closeErr != nil {
			err = fmt.Errorf("failed to close segment file: %w", closeErr)
		}
	})
	return err
}

// Written returns the number of samples written so far
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Dropped returns the number of samples dropped because of lock contention
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// fill converts buf into the scratch buffer in the file encoding
func (w *wavWriter) fill(buf audio.Buffer, cfg audio.StreamConfig) {
	n := buf.Len()
	if cap(w.scratch.Data) < n {
		w.scratch.Data = make([]int, n)
	}
	data := w.scratch.Data[:n]

	switch b := buf.(type) {
	case audio.Int16Buffer:
		for i, v := range b {
			data[i] = encodeSample(float64(v)/32768, int64(v)<<16, cfg.Format)
		}
	case audio.Int32Buffer:
		for i, v := range b {
			data[i] = encodeSample(float64(v)/2147483648, int64(v), cfg.Format)
		}
	case audio.Float32Buffer:
		for i, v := range b {
			data[i] = encodeSample(float64(v), int64(clamp(float64(v))*math.MaxInt32), cfg.Format)
		}
	}
	w.scratch.Data = data
}

// encodeSample produces the integer the encoder writes for one sample.
// full is the sample scaled to the 32-bit integer range.
func encodeSample(normalized float64, full int64, target audio.SampleFormat) int {
	switch target {
	case audio.FormatFloat32:
		return int(int32(math.Float32bits(float32(normalized))))
	case audio.FormatInt32:
		return int(int32(full))
	default:
		return int(int16(full >> 16))
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
