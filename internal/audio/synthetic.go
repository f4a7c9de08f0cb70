package audio

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SyntheticDeviceName is the single device exposed by the synthetic backend
const SyntheticDeviceName = "synthetic-sine"

const syntheticAmplitude = 0.5

// SyntheticBackend produces a sine tone in real time. It stands in for
// hardware on machines without an input device and in tests.
type SyntheticBackend struct {
	ToneHz float64
	// Tick is the callback period; 10ms when zero
	Tick time.Duration
}

func NewSyntheticBackend(toneHz float64) *SyntheticBackend {
	return &SyntheticBackend{ToneHz: toneHz}
}

func (b *SyntheticBackend) ListInputDevices() ([]string, error) {
	return []string{SyntheticDeviceName}, nil
}

func (b *SyntheticBackend) DefaultInput() (Device, error) {
	return &syntheticDevice{backend: b}, nil
}

func (b *SyntheticBackend) FindInput(name string) (Device, error) {
	if _, ok := findExact([]string{SyntheticDeviceName}, name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return &syntheticDevice{backend: b}, nil
}

func (b *SyntheticBackend) GetType() BackendType {
	return BackendTypeSynthetic
}

func (b *SyntheticBackend) Close() error {
	return nil
}

type syntheticDevice struct {
	backend *SyntheticBackend
}

func (d *syntheticDevice) Name() string {
	return SyntheticDeviceName
}

func (d *syntheticDevice) BuildInputStream(cfg StreamConfig, onData DataCallback, onError ErrorCallback) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("unsupported stream config: %w", err)
	}
	if d.backend.ToneHz <= 0 {
		return nil, fmt.Errorf("tone frequency must be > 0, got %.1f", d.backend.ToneHz)
	}

	tick := d.backend.Tick
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}

	return &syntheticStream{
		cfg:    cfg,
		toneHz: d.backend.ToneHz,
		tick:   tick,
		onData: onData,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

type syntheticStream struct {
	cfg    StreamConfig
	toneHz float64
	tick   time.Duration
	onData DataCallback

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	mutex     sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

func (s *syntheticStream) Play() error {
	s.startOnce.Do(func() {
		s.mutex.Lock()
		s.started = true
		s.mutex.Unlock()
		go s.run()
	})
	return nil
}

// run delivers as many frames as wall-clock time says are due on every tick
func (s *syntheticStream) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	start := time.Now()
	var produced int64

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			due := int64(now.Sub(start).Seconds() * float64(s.cfg.SampleRate))
			if due <= produced {
				continue
			}
			s.onData(SineBuffer(s.cfg, s.toneHz, produced, int(due-produced)))
			produced = due
		}
	}
}

func (s *syntheticStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.mutex.Lock()
		started := s.started
		s.mutex.Unlock()
		if started {
			<-s.done
		}
	})
	return nil
}

// SineBuffer renders frames of a sine tone starting at frame offset, with the
// same value on every channel.
func SineBuffer(cfg StreamConfig, toneHz float64, offset int64, frames int) Buffer {
	channels := int(cfg.Channels)
	buf := NewBuffer(cfg.Format, frames*channels)

	for i := 0; i < frames; i++ {
		t := float64(offset+int64(i)) / float64(cfg.SampleRate)
		v := syntheticAmplitude * math.Sin(2*math.Pi*toneHz*t)
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			switch b := buf.(type) {
			case Int16Buffer:
				b[idx] = int16(v * math.MaxInt16)
			case Int32Buffer:
				b[idx] = int32(v * math.MaxInt32)
			case Float32Buffer:
				b[idx] = float32(v)
			}
		}
	}
	return buf
}
