package segment

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/jamscribe/internal/audio"
)

// Session is a running input stream bound to one sink
type Session struct {
	stream   audio.Stream
	stopOnce sync.Once
	stopErr  error
}

// StartSession builds an input stream on device that feeds sink and starts it.
// onError, when set, is called for stream errors after they are logged.
func StartSession(device audio.Device, cfg audio.StreamConfig, sink *Sink, onError func(error)) (*Session, error) {
	stream, err := device.BuildInputStream(cfg,
		func(buf audio.Buffer) {
			sink.Write(buf)
		},
		func(err error) {
			slog.Error("Input stream error", "device", device.Name(), "error", err)
			if onError != nil {
				onError(err)
			}
		})
	if err != nil {
		return nil, fmt.Errorf("failed to build input stream on %s: %w", device.Name(), err)
	}

	if err := stream.Play(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %s: %w", device.Name(), err)
	}

	return &Session{stream: stream}, nil
}

// Stop halts callbacks and releases the stream. Safe to call more than once.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stream.Close()
	})
	return s.stopErr
}
