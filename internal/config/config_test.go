package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "jamscribe.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return configFile
}

func TestDefault_Values(t *testing.T) {
	cfg := Default()

	if cfg.Audio.Channels != 2 || cfg.Audio.SampleRate != 16000 || cfg.Audio.SampleFormat != "i16" {
		t.Errorf("Unexpected default audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.BufferMin != 0 || cfg.Audio.BufferMax != 8192 {
		t.Errorf("Unexpected default buffer range: %d..%d", cfg.Audio.BufferMin, cfg.Audio.BufferMax)
	}
	if cfg.Segment.Duration != 2*time.Second {
		t.Errorf("Expected 2s segments, got %s", cfg.Segment.Duration)
	}
	if cfg.Upload.Endpoint != "http://localhost:8009/transcribe" {
		t.Errorf("Unexpected default endpoint: %s", cfg.Upload.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
	if cfg.Inheritance["audio.sample_rate"] != BuiltIn {
		t.Errorf("Expected built-in marker, got %q", cfg.Inheritance["audio.sample_rate"])
	}
}

func TestDefault_ReturnsCopy(t *testing.T) {
	a := Default()
	a.Audio.SampleRate = 1
	b := Default()
	if b.Audio.SampleRate != 16000 {
		t.Errorf("Default() must not share state, got sample rate %d", b.Audio.SampleRate)
	}
}

func TestSlotPath(t *testing.T) {
	cfg := Default()
	cfg.Segment.Directory = "/var/spool/jamscribe"
	cfg.Segment.Pattern = "segment-%d.wav"

	if got := cfg.SlotPath(0); got != "/var/spool/jamscribe/segment-0.wav" {
		t.Errorf("Unexpected slot 0 path: %s", got)
	}
	if got := cfg.SlotPath(1); got != "/var/spool/jamscribe/segment-1.wav" {
		t.Errorf("Unexpected slot 1 path: %s", got)
	}
}

func TestMergeConfigs_ProfileOverridesAndInherits(t *testing.T) {
	base := Default()
	profile := &Config{
		Audio: AudioConfig{
			Channels:   1,
			SampleRate: 48000,
		},
		Segment: SegmentConfig{
			Duration: 5 * time.Second,
		},
		Server: ServerConfig{
			Advertise: true,
		},
	}

	result := mergeConfigs(base, profile)

	if result.Audio.Channels != 1 || result.Audio.SampleRate != 48000 {
		t.Errorf("Audio overrides not applied: %+v", result.Audio)
	}
	if result.Audio.SampleFormat != "i16" {
		t.Errorf("Expected inherited sample format i16, got %s", result.Audio.SampleFormat)
	}
	if result.Segment.Duration != 5*time.Second {
		t.Errorf("Expected 5s duration, got %s", result.Segment.Duration)
	}
	if result.Upload.Endpoint != base.Upload.Endpoint {
		t.Errorf("Expected inherited endpoint, got %s", result.Upload.Endpoint)
	}
	if !result.Server.Advertise {
		t.Error("Expected advertise to follow the profile")
	}

	if result.Inheritance["audio.sample_rate"] != ProfileSpecific {
		t.Errorf("Expected sample_rate profile-specific, got %s", result.Inheritance["audio.sample_rate"])
	}
	if result.Inheritance["audio.sample_format"] != BuiltIn {
		t.Errorf("Expected sample_format built-in, got %s", result.Inheritance["audio.sample_format"])
	}
}

func TestMergeConfigs_NilProfile(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil)

	if result.Audio != base.Audio || result.Segment != base.Segment {
		t.Errorf("Nil profile should keep base values, got %+v", result)
	}
	if result == base {
		t.Error("mergeConfigs must return a new config")
	}
}

func TestLoadWithProfile_DefaultProfile(t *testing.T) {
	dir := t.TempDir()
	configFile := createTempConfig(t, `
configs:
  default:
    audio:
      backend: synthetic
      channels: 1
      sample_format: f32
    segment:
      duration: 3s
      directory: `+dir+`
    log:
      path: `+filepath.Join(dir, "transcripts.log")+`
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Audio.Backend != "synthetic" || cfg.Audio.Channels != 1 || cfg.Audio.SampleFormat != "f32" {
		t.Errorf("Unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected built-in sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Segment.Duration != 3*time.Second {
		t.Errorf("Expected 3s duration, got %s", cfg.Segment.Duration)
	}
	if cfg.SlotPath(1) != filepath.Join(dir, "recorded_1.wav") {
		t.Errorf("Unexpected slot path: %s", cfg.SlotPath(1))
	}
	if cfg.Inheritance["segment.duration"] != ProfileSpecific {
		t.Errorf("Expected duration profile-specific, got %s", cfg.Inheritance["segment.duration"])
	}
}

func TestLoadWithProfile_ActiveProfileInheritsDefault(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio

configs:
  default:
    audio:
      sample_rate: 44100
    upload:
      endpoint: http://transcriber:9000/transcribe
  studio:
    audio:
      device: "Scarlett 2i2 USB"
      channels: 1
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Audio.Device != "Scarlett 2i2 USB" {
		t.Errorf("Expected studio device, got %s", cfg.Audio.Device)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate inherited from default profile, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Upload.Endpoint != "http://transcriber:9000/transcribe" {
		t.Errorf("Expected endpoint inherited from default profile, got %s", cfg.Upload.Endpoint)
	}
	if cfg.Inheritance["audio.sample_rate"] != Inherited {
		t.Errorf("Expected sample_rate inherited, got %s", cfg.Inheritance["audio.sample_rate"])
	}
	if cfg.Inheritance["audio.device"] != ProfileSpecific {
		t.Errorf("Expected device profile-specific, got %s", cfg.Inheritance["audio.device"])
	}
}

func TestLoadWithProfile_InheritsZeroValuedKeys(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio

configs:
  default:
    segment:
      count: 5
    server:
      addr: ":9000"
      advertise: true
  studio:
    audio:
      channels: 1
  bench:
    segment:
      count: 0
    server:
      advertise: false
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.Server.Advertise {
		t.Error("Expected server.advertise inherited from default profile")
	}
	if cfg.Segment.Count != 5 {
		t.Errorf("Expected segment.count 5 inherited from default profile, got %d", cfg.Segment.Count)
	}
	if got := cfg.Inheritance["server.advertise"]; got != Inherited {
		t.Errorf("Expected server.advertise marked inherited, got %s", got)
	}

	cfg, err = LoadWithProfile(configFile, "bench")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Server.Advertise {
		t.Error("Expected bench profile to turn advertise off")
	}
	if cfg.Segment.Count != 0 {
		t.Errorf("Expected bench profile to reset segment.count to 0, got %d", cfg.Segment.Count)
	}
	if got := cfg.Inheritance["segment.count"]; got != ProfileSpecific {
		t.Errorf("Expected segment.count profile-specific, got %s", got)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Expected server.addr inherited, got %q", cfg.Server.Addr)
	}
}

func TestLoadWithProfile_ExplicitProfileOverridesActive(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio
configs:
  studio:
    audio:
      channels: 1
  field:
    audio:
      channels: 2
      sample_rate: 8000
`)

	cfg, err := LoadWithProfile(configFile, "field")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Audio.Channels != 2 || cfg.Audio.SampleRate != 8000 {
		t.Errorf("Expected field profile values, got %+v", cfg.Audio)
	}
}

func TestLoadWithProfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		profile string
		wantErr string
	}{
		{
			name:    "missing profile",
			content: "configs:\n  default:\n    audio:\n      channels: 1\n",
			profile: "nope",
			wantErr: "configuration profile 'nope' not found",
		},
		{
			name:    "no configs",
			content: "active_config: default\n",
			wantErr: "configs section is required",
		},
		{
			name:    "invalid sample format",
			content: "configs:\n  default:\n    audio:\n      sample_format: u8\n",
			wantErr: "audio.sample_format",
		},
		{
			name:    "invalid endpoint",
			content: "configs:\n  default:\n    upload:\n      endpoint: ftp://host/x\n",
			wantErr: "upload.endpoint must be an http(s) URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, tt.content)
			_, err := LoadWithProfile(configFile, tt.profile)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error for empty config file path")
	}
	if _, err := LoadWithProfile(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero channels", func(c *Config) { c.Audio.Channels = 0 }, "audio.channels"},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"empty device", func(c *Config) { c.Audio.Device = " " }, "audio.device"},
		{"buffer range", func(c *Config) { c.Audio.BufferMin = 1024; c.Audio.BufferMax = 512 }, "audio.buffer_min"},
		{"synthetic without tone", func(c *Config) { c.Audio.Backend = "synthetic"; c.Audio.ToneHz = 0 }, "audio.tone_hz"},
		{"zero duration", func(c *Config) { c.Segment.Duration = 0 }, "segment.duration"},
		{"pattern without verb", func(c *Config) { c.Segment.Pattern = "recorded.wav" }, "segment.pattern"},
		{"pattern with two verbs", func(c *Config) { c.Segment.Pattern = "%d_%d.wav" }, "segment.pattern"},
		{"pattern with directory", func(c *Config) { c.Segment.Pattern = "sub/recorded_%d.wav" }, "segment.pattern"},
		{"negative count", func(c *Config) { c.Segment.Count = -1 }, "segment.count"},
		{"endpoint without host", func(c *Config) { c.Upload.Endpoint = "http:///transcribe" }, "upload.endpoint"},
		{"zero timeout", func(c *Config) { c.Upload.Timeout = 0 }, "upload.timeout"},
		{"zero in flight", func(c *Config) { c.Upload.MaxInFlight = 0 }, "upload.max_in_flight"},
		{"empty log path", func(c *Config) { c.Log.Path = "" }, "log.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: default
configs:
  default:
    audio:
      channels: 2
  podcast:
    audio:
      channels: 1
`)

	if err := UpdateActiveConfig(configFile, "podcast"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	root, err := ReadRootConfig(configFile)
	if err != nil {
		t.Fatalf("Failed to re-read config: %v", err)
	}
	if root.ActiveConfig != "podcast" {
		t.Errorf("Expected active_config podcast, got %s", root.ActiveConfig)
	}

	if err := UpdateActiveConfig(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/jamscribe"); got != filepath.Join(home, "jamscribe") {
		t.Errorf("Unexpected expansion: %s", got)
	}
	if got := expandPath("/tmp/x"); got != "/tmp/x" {
		t.Errorf("Absolute path should be unchanged, got %s", got)
	}
}
