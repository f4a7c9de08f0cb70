package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/jamscribe/internal/segment"
)

func TestClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Expected audio/wav, got %s", ct)
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("Expected a UUID request ID: %v", err)
		}
		if r.Header.Get("X-Segment-Slot") != "1" || r.Header.Get("X-Segment-Sequence") != "7" {
			t.Errorf("Unexpected segment headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFF" {
			t.Errorf("Expected raw file bytes, got %q", body)
		}
		w.Write([]byte("  hello world\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	seg := segment.Finalized{Slot: segment.Slot{Index: 1}, Sequence: 7}

	body, err := client.Transcribe(context.Background(), []byte("RIFF"), seg)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if string(body) != "  hello world\n" {
		t.Errorf("Expected body unmodified, got %q", body)
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second).Transcribe(context.Background(), nil, segment.Finalized{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.Code != 500 || statusErr.Error() != "transcription endpoint returned 500: model not loaded" {
		t.Errorf("Unexpected error: %v", statusErr)
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if _, err := NewClient(url, time.Second).Transcribe(context.Background(), nil, segment.Finalized{}); err == nil {
		t.Error("Expected error for closed endpoint")
	}
}
