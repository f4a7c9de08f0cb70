package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/jamscribe/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeSynthetic BackendType = "synthetic"
)

// DefaultDeviceName selects the backend's default input device
const DefaultDeviceName = "default"

// Backend defines the interface for audio backend implementations
type Backend interface {
	// List the names of available input devices
	ListInputDevices() ([]string, error)

	// Open the system default input device
	DefaultInput() (Device, error)

	// Open the input device whose name matches exactly
	FindInput(name string) (Device, error)

	// Get the backend type
	GetType() BackendType

	// Release backend resources
	Close() error
}

// NewBackend creates the backend selected by the configuration
func NewBackend(cfg *config.Config) (Backend, error) {
	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireBackend(), nil
	case BackendTypeSynthetic:
		return NewSyntheticBackend(cfg.Audio.ToneHz), nil
	default:
		return NewPortAudioBackend()
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "pipewire":
		return BackendTypePipeWire
	case "synthetic":
		return BackendTypeSynthetic
	default:
		return BackendTypePortAudio
	}
}

// OpenInput resolves "default" (or an empty name) to the default input and
// anything else to an exact device-name match.
func OpenInput(b Backend, name string) (Device, error) {
	if name == "" || name == DefaultDeviceName {
		device, err := b.DefaultInput()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input on %s backend: %v", ErrDeviceNotFound, b.GetType(), err)
		}
		return device, nil
	}
	return b.FindInput(name)
}

// findExact returns the entry of names equal to name
func findExact(names []string, name string) (string, bool) {
	for _, n := range names {
		if n == name {
			return n, true
		}
	}
	return "", false
}
