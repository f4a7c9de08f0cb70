//go:build !portaudio

package audio

import "errors"

var errPortAudioUnavailable = errors.New("PortAudio support is not compiled in, rebuild with -tags portaudio or use --backend pipewire")

// NewPortAudioBackend reports that this binary was built without PortAudio
func NewPortAudioBackend() (Backend, error) {
	return nil, errPortAudioUnavailable
}
