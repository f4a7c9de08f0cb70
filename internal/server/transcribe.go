package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-audio/wav"
)

// maxUploadBytes bounds the size of a segment accepted by the development endpoint
const maxUploadBytes = 64 << 20

// SegmentSummary describes a decoded WAV upload
type SegmentSummary struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Float      bool
	Frames     int
	PeakDBFS   float64
}

// Duration returns the playback time of the segment
func (s SegmentSummary) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(s.Frames) * time.Second / time.Duration(s.SampleRate)
}

func (s SegmentSummary) String() string {
	format := "pcm"
	if s.Float {
		format = "float"
	}
	return fmt.Sprintf("%.2fs %dch %dHz %d-bit %s peak %.1f dBFS",
		s.Duration().Seconds(), s.Channels, s.SampleRate, s.BitDepth, format, s.PeakDBFS)
}

// SummarizeWAV decodes a WAV file and measures its length and peak level
func SummarizeWAV(data []byte) (SegmentSummary, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return SegmentSummary{}, fmt.Errorf("invalid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return SegmentSummary{}, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	summary := SegmentSummary{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Float:      dec.WavAudioFormat == 3,
		PeakDBFS:   math.Inf(-1),
	}
	if buf == nil || len(buf.Data) == 0 || summary.Channels == 0 {
		return summary, nil
	}
	summary.Frames = len(buf.Data) / summary.Channels

	fullScale := float64(int64(1) << (summary.BitDepth - 1))
	peak := 0.0
	for _, v := range buf.Data {
		var level float64
		if summary.Float {
			level = float64(math.Float32frombits(uint32(int32(v))))
		} else {
			level = float64(v) / fullScale
		}
		peak = math.Max(peak, math.Abs(level))
	}
	if peak > 0 {
		summary.PeakDBFS = 20 * math.Log10(peak)
	}
	return summary, nil
}

// NewTranscribeHandler returns a development stand-in for the transcription
// endpoint. It accepts raw WAV bytes and answers with a one-line summary.
func NewTranscribeHandler(delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			http.Error(w, "Error reading audio", http.StatusBadRequest)
			return
		}

		summary, err := SummarizeWAV(data)
		if err != nil {
			slog.Warn("Rejected upload", "error", err, "bytes", len(data))
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		slog.Info("Transcription request received",
			"request_id", r.Header.Get("X-Request-ID"),
			"slot", r.Header.Get("X-Segment-Slot"),
			"sequence", r.Header.Get("X-Segment-Sequence"),
			"bytes", len(data),
			"summary", summary.String())

		// Simulate processing time
		if delay > 0 {
			time.Sleep(delay)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "[segment %s] %s", r.Header.Get("X-Segment-Sequence"), summary)
	}
}
