package audio

import "fmt"

// PipeWireBackend implements the Backend interface for PipeWire. Devices are
// JACK source ports; capture runs through a pw-jack ffmpeg process.
type PipeWireBackend struct {
	pipewire *PipeWire
}

func NewPipeWireBackend() *PipeWireBackend {
	return &PipeWireBackend{pipewire: NewPipeWire()}
}

// ListInputDevices returns available PipeWire/JACK source ports
func (p *PipeWireBackend) ListInputDevices() ([]string, error) {
	return p.pipewire.SourcePorts()
}

func (p *PipeWireBackend) DefaultInput() (Device, error) {
	ports, err := p.pipewire.SourcePorts()
	if err != nil {
		return nil, err
	}
	port, ok := defaultSourcePort(ports)
	if !ok {
		return nil, fmt.Errorf("no PipeWire source ports available")
	}
	return newPipeWireDevice(p.pipewire, port), nil
}

func (p *PipeWireBackend) FindInput(name string) (Device, error) {
	if err := p.pipewire.CheckSource(name); err != nil {
		return nil, err
	}
	return newPipeWireDevice(p.pipewire, name), nil
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

func (p *PipeWireBackend) Close() error {
	return nil
}
