package audio

import "errors"

// ErrDeviceNotFound is returned when no input device matches the requested name
var ErrDeviceNotFound = errors.New("input device not found")

// DataCallback receives one buffer of captured samples. It runs on the
// backend's capture thread and the buffer is only valid until it returns.
type DataCallback func(Buffer)

// ErrorCallback receives asynchronous stream errors (overflows, process exits)
type ErrorCallback func(error)

// Device is an input device that can open capture streams
type Device interface {
	Name() string
	BuildInputStream(cfg StreamConfig, onData DataCallback, onError ErrorCallback) (Stream, error)
}

// Stream is an open capture stream
type Stream interface {
	// Play starts delivering callbacks
	Play() error
	// Close halts callbacks and releases the stream. It is safe to call more than once.
	Close() error
}
