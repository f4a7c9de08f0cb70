package segment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/jamscribe/internal/audio"
	"github.com/audiolibrelab/jamscribe/internal/metrics"
)

// State is the lifecycle phase of the controller
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dispatcher receives finalized segments. A slot is claimed before its file
// is re-created; Dispatch takes over the claim and releases it once the
// upload no longer needs the file.
type Dispatcher interface {
	// Claim blocks until no earlier upload of slot is still using its file
	Claim(ctx context.Context, slot Slot) error
	// Release gives up a claim that will not be dispatched
	Release(slot Slot)
	// Dispatch starts the upload in the background and returns
	Dispatch(seg Finalized)
}

// Options tunes the controller
type Options struct {
	// Duration is the length of every segment
	Duration time.Duration
	// Limit stops the controller after this many segments; 0 runs until cancelled
	Limit   int
	Metrics *metrics.Metrics
}

// Status is a snapshot of the controller for reporting
type Status struct {
	State     string     `json:"state"`
	Slot      int        `json:"slot"`
	Device    string     `json:"device"`
	Stream    string     `json:"stream"`
	Segments  uint64     `json:"segments"`
	Dropped   uint64     `json:"dropped_samples"`
	StartedAt time.Time  `json:"started_at"`
	Last      *Finalized `json:"last,omitempty"`
}

// Controller drives the Idle, Recording, Finalizing, Dispatching cycle over
// the two slots.
type Controller struct {
	device     audio.Device
	stream     audio.StreamConfig
	rotation   *Rotation
	dispatcher Dispatcher
	options    Options

	mutex     sync.RWMutex
	state     State
	slot      int
	segments  uint64
	dropped   uint64
	startedAt time.Time
	last      *Finalized
}

// NewController creates a controller that records from device into the rotation's slots
func NewController(device audio.Device, stream audio.StreamConfig, rotation *Rotation, dispatcher Dispatcher, options Options) (*Controller, error) {
	if options.Duration <= 0 {
		return nil, fmt.Errorf("segment duration must be > 0, got %s", options.Duration)
	}
	if options.Limit < 0 {
		return nil, fmt.Errorf("segment limit must be >= 0, got %d", options.Limit)
	}
	if err := stream.Validate(); err != nil {
		return nil, err
	}

	return &Controller{
		device:     device,
		stream:     stream,
		rotation:   rotation,
		dispatcher: dispatcher,
		options:    options,
		slot:       -1,
	}, nil
}

// Run records segments until ctx is cancelled or the segment limit is
// reached. On cancellation the active segment is finalized and dispatched
// before Run returns. Errors opening the device or a segment file are fatal.
func (c *Controller) Run(ctx context.Context) error {
	c.mutex.Lock()
	c.startedAt = time.Now()
	c.mutex.Unlock()

	slog.Info("Starting capture",
		"device", c.device.Name(),
		"stream", c.stream.String(),
		"segment", c.options.Duration)

	for seq := uint64(1); ; seq++ {
		if c.options.Limit > 0 && seq > uint64(c.options.Limit) {
			slog.Info("Segment limit reached", "segments", c.options.Limit)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		cancelled, err := c.recordSegment(ctx, seq)
		if err != nil {
			c.setState(StateIdle, -1)
			return err
		}
		c.setState(StateIdle, -1)
		if cancelled {
			slog.Info("Capture stopped")
			return nil
		}
	}
}

// recordSegment runs one full cycle and reports whether ctx ended the recording early
func (c *Controller) recordSegment(ctx context.Context, seq uint64) (bool, error) {
	slot := c.rotation.Next()

	if err := c.dispatcher.Claim(ctx, slot); err != nil {
		// cancelled while waiting for the slot's previous upload
		return true, nil
	}

	c.setState(StateRecording, slot.Index)

	sink, err := NewSink(slot.Path, c.stream)
	if err != nil {
		c.dispatcher.Release(slot)
		return false, fmt.Errorf("slot %d: %w", slot.Index, err)
	}

	session, err := StartSession(c.device, c.stream, sink, func(error) {
		c.options.Metrics.RecordStreamError()
	})
	if err != nil {
		sink.Finalize()
		c.dispatcher.Release(slot)
		return false, err
	}

	recordedAt := time.Now()
	slog.Debug("Segment recording", "slot", slot.Index, "path", slot.Path, "sequence", seq)

	cancelled := false
	timer := time.NewTimer(c.options.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		cancelled = true
	}

	c.setState(StateFinalizing, slot.Index)

	if err := session.Stop(); err != nil {
		slog.Warn("Failed to stop input stream", "error", err)
	}
	if err := sink.Finalize(); err != nil {
		c.dispatcher.Release(slot)
		return false, fmt.Errorf("slot %d: %w", slot.Index, err)
	}

	seg := Finalized{
		Slot:       slot,
		Sequence:   seq,
		Samples:    sink.Written(),
		Dropped:    sink.Dropped(),
		RecordedAt: recordedAt,
		Duration:   c.audioDuration(sink.Written()),
	}

	slog.Info("Segment finalized",
		"slot", slot.Index,
		"path", slot.Path,
		"sequence", seq,
		"duration", seg.Duration)
	if seg.Dropped > 0 {
		slog.Debug("Samples dropped during finalize", "slot", slot.Index, "dropped", seg.Dropped)
	}
	c.options.Metrics.RecordSegment(slot.Index, seg.Samples, seg.Dropped, seg.Duration.Seconds())

	c.setState(StateDispatching, slot.Index)
	c.dispatcher.Dispatch(seg)

	c.mutex.Lock()
	c.segments++
	c.dropped += seg.Dropped
	c.last = &seg
	c.mutex.Unlock()

	return cancelled, nil
}

// audioDuration converts a sample count into playback time
func (c *Controller) audioDuration(samples uint64) time.Duration {
	frames := samples / uint64(c.stream.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.stream.SampleRate)
}

func (c *Controller) setState(state State, slot int) {
	c.mutex.Lock()
	c.state = state
	c.slot = slot
	c.mutex.Unlock()
	c.options.Metrics.SetActiveSlot(slot)
}

// State returns the current lifecycle phase
func (c *Controller) State() State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.state
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	status := Status{
		State:     c.state.String(),
		Slot:      c.slot,
		Device:    c.device.Name(),
		Stream:    c.stream.String(),
		Segments:  c.segments,
		Dropped:   c.dropped,
		StartedAt: c.startedAt,
	}
	if c.last != nil {
		last := *c.last
		status.Last = &last
	}
	return status
}
