package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/jamscribe/internal/audio"
	"github.com/audiolibrelab/jamscribe/internal/segment"
)

func recordWAV(t *testing.T, cfg audio.StreamConfig, frames int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "segment.wav")
	sink, err := segment.NewSink(path, cfg)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	sink.Write(audio.SineBuffer(cfg, 100, 0, frames))
	if err := sink.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read segment: %v", err)
	}
	return data
}

func TestSummarizeWAV(t *testing.T) {
	tests := []struct {
		name  string
		cfg   audio.StreamConfig
		float bool
	}{
		{"i16", audio.StreamConfig{Channels: 1, SampleRate: 16000, Format: audio.FormatInt16}, false},
		{"f32", audio.StreamConfig{Channels: 2, SampleRate: 8000, Format: audio.FormatFloat32}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := int(tt.cfg.SampleRate) / 2
			summary, err := SummarizeWAV(recordWAV(t, tt.cfg, frames))
			if err != nil {
				t.Fatalf("SummarizeWAV failed: %v", err)
			}

			if summary.Frames != frames || summary.Channels != int(tt.cfg.Channels) || summary.Float != tt.float {
				t.Errorf("Unexpected summary: %+v", summary)
			}
			if d := summary.Duration().Seconds(); d != 0.5 {
				t.Errorf("Expected 0.5s, got %.3fs", d)
			}
			// Sine at half amplitude peaks around -6 dBFS
			if summary.PeakDBFS < -6.5 || summary.PeakDBFS > -5.5 {
				t.Errorf("Expected peak near -6 dBFS, got %.2f", summary.PeakDBFS)
			}
		})
	}
}

func TestSummarizeWAV_Invalid(t *testing.T) {
	if _, err := SummarizeWAV([]byte("not a wav file")); err == nil {
		t.Error("Expected error for invalid data")
	}
}

func TestTranscribeHandler(t *testing.T) {
	cfg := audio.StreamConfig{Channels: 1, SampleRate: 16000, Format: audio.FormatInt16}
	handler := NewTranscribeHandler(0)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader(recordWAV(t, cfg, 16000)))
	req.Header.Set("X-Segment-Sequence", "5")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); !strings.HasPrefix(body, "[segment 5] 1.00s 1ch 16000Hz 16-bit pcm") {
		t.Errorf("Unexpected response: %q", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("junk")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for junk upload, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcribe", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
