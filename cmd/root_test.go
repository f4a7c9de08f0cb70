package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/jamscribe/internal/config"
)

func resetFlags(t *testing.T) {
	t.Helper()
	cfgFile, profile, deviceName, backendName, segmentCount = "", "", "", "", -1
	t.Cleanup(func() {
		cfgFile, profile, deviceName, backendName, segmentCount = "", "", "", "", -1
		rootCmd.Flags().Lookup("count").Changed = false
		rootCmd.PersistentFlags().Lookup("device").Changed = false
	})
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())

	loaded, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if loaded.Upload.Endpoint != "http://localhost:8009/transcribe" || loaded.Segment.Duration.Seconds() != 2 {
		t.Errorf("Expected built-in defaults, got %+v", loaded)
	}
	if cfgFile != "" {
		t.Errorf("Expected no config file, got %s", cfgFile)
	}
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	resetFlags(t)
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := loadConfig(rootCmd); err == nil {
		t.Error("Expected error for an explicit config file that does not exist")
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())

	if err := rootCmd.PersistentFlags().Set("device", "USB Microphone"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	if err := rootCmd.Flags().Set("count", "5"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}

	loaded, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if loaded.Audio.Device != "USB Microphone" || loaded.Segment.Count != 5 {
		t.Errorf("Expected flag overrides, got device=%q count=%d", loaded.Audio.Device, loaded.Segment.Count)
	}
	if loaded.Inheritance["audio.device"] != "flag" {
		t.Errorf("Expected device to be marked as flag, got %s", loaded.Inheritance["audio.device"])
	}
}

func TestLoadConfig_Profile(t *testing.T) {
	resetFlags(t)

	cfgFile = filepath.Join(t.TempDir(), "jamscribe.yaml")
	content := `active_config: mono
configs:
  default:
    upload:
      endpoint: http://transcriber:8009/transcribe
  mono:
    audio:
      channels: 1
`
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	loaded, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if loaded.Audio.Channels != 1 || loaded.Upload.Endpoint != "http://transcriber:8009/transcribe" {
		t.Errorf("Unexpected resolved config: %+v", loaded)
	}
	if activeProfileName() != "mono" {
		t.Errorf("Expected active profile mono, got %s", activeProfileName())
	}
}

func TestGetInheritanceIndicator(t *testing.T) {
	tests := map[string]string{
		config.Inherited:       "[inherited]",
		config.ProfileSpecific: "[profile-specific]",
		config.BuiltIn:         "[built-in]",
		"flag":                 "[flag]",
		"":                     "[unknown]",
	}
	for status, want := range tests {
		if got := getInheritanceIndicator(status); got != want {
			t.Errorf("getInheritanceIndicator(%q) = %s, want %s", status, got, want)
		}
	}
}
