//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var errInputOverflow = errors.New("input overflow, samples lost by the host")

// PortAudioBackend implements the Backend interface on top of PortAudio
type PortAudioBackend struct {
	closeOnce sync.Once
}

// NewPortAudioBackend initializes PortAudio. Close must be called to terminate it.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioBackend{}, nil
}

// ListInputDevices returns the names of all devices with input channels
func (p *PortAudioBackend) ListInputDevices() ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}

	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func (p *PortAudioBackend) DefaultInput() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, err
	}
	return &portAudioDevice{info: info}, nil
}

func (p *PortAudioBackend) FindInput(name string) (Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}

	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == name {
			return &portAudioDevice{info: d}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

func (p *PortAudioBackend) GetType() BackendType {
	return BackendTypePortAudio
}

func (p *PortAudioBackend) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

type portAudioDevice struct {
	info *portaudio.DeviceInfo
}

func (d *portAudioDevice) Name() string {
	return d.info.Name
}

func (d *portAudioDevice) BuildInputStream(cfg StreamConfig, onData DataCallback, onError ErrorCallback) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("unsupported stream config: %w", err)
	}
	if int(cfg.Channels) > d.info.MaxInputChannels {
		return nil, fmt.Errorf("device %s supports at most %d input channels, requested %d",
			d.info.Name, d.info.MaxInputChannels, cfg.Channels)
	}

	params := portaudio.LowLatencyParameters(d.info, nil)
	params.Input.Channels = int(cfg.Channels)
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BufferSize.Frames()

	report := func(flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 && onError != nil {
			onError(errInputOverflow)
		}
	}

	var callback interface{}
	switch cfg.Format {
	case FormatInt16:
		callback = func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(Int16Buffer(in))
		}
	case FormatInt32:
		callback = func(in []int32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(Int32Buffer(in))
		}
	case FormatFloat32:
		callback = func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(Float32Buffer(in))
		}
	default:
		return nil, fmt.Errorf("unsupported sample format: %s", cfg.Format)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %s: %w", d.info.Name, err)
	}

	slog.Debug("PortAudio input stream opened", "device", d.info.Name, "config", cfg.String(), "frames_per_buffer", params.FramesPerBuffer)
	return &portAudioStream{stream: stream}, nil
}

type portAudioStream struct {
	stream    *portaudio.Stream
	mutex     sync.Mutex
	started   bool
	closeOnce sync.Once
	closeErr  error
}

func (s *portAudioStream) Play() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if s.started {
			if err := s.stream.Stop(); err != nil {
				s.closeErr = fmt.Errorf("failed to stop input stream: %w", err)
			}
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("failed to close input stream: %w", err)
		}
	})
	return s.closeErr
}
