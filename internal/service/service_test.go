package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/jamscribe/internal/audio"
	"github.com/audiolibrelab/jamscribe/internal/config"
)

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.Backend = "synthetic"
	cfg.Audio.Channels = 1
	cfg.Segment.Directory = t.TempDir()
	cfg.Segment.Duration = 50 * time.Millisecond
	cfg.Segment.Count = 3
	cfg.Upload.Endpoint = endpoint
	cfg.Upload.Timeout = 5 * time.Second
	cfg.Log.Path = filepath.Join(cfg.Segment.Directory, "log.txt")
	return cfg
}

func TestService_RecordsAndUploads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("segment " + r.Header.Get("X-Segment-Sequence")))
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL+"/transcribe")
	svc, err := New(cfg, "", "default")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Log.Path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 transcripts, got %q", lines)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "segment ") {
			t.Errorf("Unexpected log line: %q", line)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := os.Stat(cfg.SlotPath(i)); err != nil {
			t.Errorf("Expected slot file %d: %v", i, err)
		}
	}

	if status := svc.Status(); status.Segments != 3 {
		t.Errorf("Expected 3 segments, got %d", status.Segments)
	}
	if svc.GetLastError() != "" {
		t.Errorf("Expected no error, got %s", svc.GetLastError())
	}
}

func TestService_UnknownDevice(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8009/transcribe")
	cfg.Audio.Device = "USB Microphone"

	_, err := New(cfg, "", "default")
	if !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestService_LogCreationFailure(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8009/transcribe")
	cfg.Log.Path = filepath.Join(t.TempDir(), "missing", "log.txt")

	if _, err := New(cfg, "", "default"); err == nil {
		t.Error("Expected error for unwritable log path")
	}
}

func TestService_ListSources(t *testing.T) {
	svc, err := New(testConfig(t, "http://localhost:8009/transcribe"), "", "default")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	sources, err := svc.ListSources()
	if err != nil || len(sources) != 1 || sources[0] != audio.SyntheticDeviceName {
		t.Errorf("Unexpected sources: %v, %v", sources, err)
	}
}
