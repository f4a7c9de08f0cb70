package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/jamscribe/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio input devices",
	Long: `List the input devices of the configured audio backend. Any name printed
here can be passed to --device (exact match).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize %s backend: %w", cfg.Audio.Backend, err)
		}
		defer backend.Close()

		return listAvailableSources(backend)
	},
}

// listAvailableSources prints the backend's input devices and marks the default
func listAvailableSources(backend audio.Backend) error {
	sources, err := backend.ListInputDevices()
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
	}

	defaultName := ""
	if device, err := backend.DefaultInput(); err == nil {
		defaultName = device.Name()
	}

	fmt.Printf("🎵 Audio Sources (%s, %s backend)\n", runtime.GOOS, backend.GetType())
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("📋 INPUT DEVICES (%d found):\n", len(sources))
	for i, source := range sources {
		marker := ""
		if source == defaultName {
			marker = " (default)"
		}
		if source == cfg.Audio.Device {
			marker += " (selected)"
		}
		fmt.Printf("  %d. %s%s\n", i+1, source, marker)
	}

	fmt.Printf("\n💡 Usage:\n")
	fmt.Printf("  • jamscribe --device \"<name>\" records from that device\n")
	fmt.Printf("  • Or set audio.device in the config file\n\n")

	return nil
}
