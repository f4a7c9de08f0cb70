package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/audiolibrelab/jamscribe/internal/metrics"
	"github.com/audiolibrelab/jamscribe/internal/segment"
)

// Transcriber sends one segment file to the transcription endpoint
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, seg segment.Finalized) ([]byte, error)
}

// Dispatcher uploads finalized segments in the background. Each slot has at
// most one upload in flight and the total number of running uploads is
// capped. Upload failures end up in the transcript log and are never
// returned to the caller.
type Dispatcher struct {
	client  Transcriber
	log     *TranscriptLog
	metrics *metrics.Metrics
	timeout time.Duration

	slots   [segment.SlotCount]chan struct{}
	workers chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher; maxInFlight bounds concurrent uploads
func NewDispatcher(client Transcriber, log *TranscriptLog, maxInFlight int, timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	d := &Dispatcher{
		client:  client,
		log:     log,
		metrics: m,
		timeout: timeout,
		workers: make(chan struct{}, maxInFlight),
	}
	for i := range d.slots {
		d.slots[i] = make(chan struct{}, 1)
	}
	return d
}

// Claim blocks until the previous upload of slot has finished with its file
func (d *Dispatcher) Claim(ctx context.Context, slot segment.Slot) error {
	sem := d.slots[slot.Index]

	select {
	case sem <- struct{}{}:
		return nil
	default:
	}

	slog.Debug("Waiting for previous upload of slot", "slot", slot.Index)
	d.metrics.RecordUploadWait()

	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives up a claim without uploading
func (d *Dispatcher) Release(slot segment.Slot) {
	select {
	case <-d.slots[slot.Index]:
	default:
	}
}

// Dispatch starts uploading seg and returns immediately. The slot claim is
// released when the upload is done.
func (d *Dispatcher) Dispatch(seg segment.Finalized) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.Release(seg.Slot)

		d.workers <- struct{}{}
		defer func() { <-d.workers }()

		d.upload(seg)
	}()
}

// Wait blocks until all dispatched uploads have finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("uploads still running: %w", ctx.Err())
	}
}

func (d *Dispatcher) upload(seg segment.Finalized) {
	start := time.Now()
	d.metrics.RecordUploadStarted()

	body, err := d.send(seg)
	elapsed := time.Since(start)

	if err != nil {
		d.metrics.RecordUploadFinished(failureReason(err), elapsed.Seconds())
		slog.Warn("Upload failed",
			"slot", seg.Slot.Index,
			"sequence", seg.Sequence,
			"error", err)
		d.append(Entry{
			Sequence: seg.Sequence,
			Slot:     seg.Slot.Index,
			Text:     fmt.Sprintf("upload failed: slot %d segment %d: %v", seg.Slot.Index, seg.Sequence, err),
			Failed:   true,
		})
		return
	}

	d.metrics.RecordUploadFinished("", elapsed.Seconds())
	slog.Info("Transcription received",
		"slot", seg.Slot.Index,
		"sequence", seg.Sequence,
		"elapsed", elapsed.Round(time.Millisecond),
		"text", string(body))
	d.append(Entry{
		Sequence: seg.Sequence,
		Slot:     seg.Slot.Index,
		Text:     string(body),
	})
}

func (d *Dispatcher) send(seg segment.Finalized) ([]byte, error) {
	data, err := os.ReadFile(seg.Slot.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment file: %w", err)
	}

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.client.Transcribe(ctx, data, seg)
}

func (d *Dispatcher) append(entry Entry) {
	if err := d.log.Append(entry); err != nil {
		slog.Warn("Failed to append to transcript log", "error", err)
		return
	}
	d.metrics.RecordTranscript(len(entry.Text) + 1)
}

// failureReason labels an upload error for metrics
func failureReason(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, os.ErrNotExist):
		return "file"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
