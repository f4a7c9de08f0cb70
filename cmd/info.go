package cmd

import (
	"fmt"

	"github.com/audiolibrelab/jamscribe/internal/config"
	"github.com/audiolibrelab/jamscribe/internal/segment"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and slot file paths",
	Long:  `Display the resolved configuration with inheritance indicators and the two segment file paths. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		for i := 0; i < segment.SlotCount; i++ {
			fmt.Printf("slot_%d: %s\n", i, cfg.SlotPath(i))
		}
		fmt.Printf("log: %s %s\n", cfg.Log.Path, indicator("log.path"))
		if cfgFile != "" {
			fmt.Printf("config: %s (profile %s)\n", cfgFile, activeProfileName())
		} else {
			fmt.Printf("config: built-in defaults\n")
		}

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, indicator("audio.backend"))
		fmt.Printf("device: %s %s\n", cfg.Audio.Device, indicator("audio.device"))
		fmt.Printf("channels: %d %s\n", cfg.Audio.Channels, indicator("audio.channels"))
		fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, indicator("audio.sample_rate"))
		fmt.Printf("sample_format: %s %s\n", cfg.Audio.SampleFormat, indicator("audio.sample_format"))
		fmt.Printf("buffer: %d..%d %s\n", cfg.Audio.BufferMin, cfg.Audio.BufferMax, indicator("audio.buffer_max"))

		fmt.Printf("\n[Segment]\n")
		fmt.Printf("duration: %s %s\n", cfg.Segment.Duration, indicator("segment.duration"))
		fmt.Printf("directory: %s %s\n", cfg.Segment.Directory, indicator("segment.directory"))
		fmt.Printf("pattern: %s %s\n", cfg.Segment.Pattern, indicator("segment.pattern"))
		fmt.Printf("count: %d %s\n", cfg.Segment.Count, indicator("segment.count"))

		fmt.Printf("\n[Upload]\n")
		fmt.Printf("endpoint: %s %s\n", cfg.Upload.Endpoint, indicator("upload.endpoint"))
		fmt.Printf("timeout: %s %s\n", cfg.Upload.Timeout, indicator("upload.timeout"))
		fmt.Printf("max_in_flight: %d %s\n", cfg.Upload.MaxInFlight, indicator("upload.max_in_flight"))

		fmt.Printf("\n[Server]\n")
		addr := cfg.Server.Addr
		if addr == "" {
			addr = "(disabled)"
		}
		fmt.Printf("addr: %s %s\n", addr, indicator("server.addr"))
		fmt.Printf("advertise: %t %s\n", cfg.Server.Advertise, indicator("server.advertise"))

		return nil
	},
}

func indicator(key string) string {
	return getInheritanceIndicator(cfg.Inheritance[key])
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case config.Inherited:
		return "[inherited]"
	case config.ProfileSpecific:
		return "[profile-specific]"
	case config.BuiltIn:
		return "[built-in]"
	case "flag":
		return "[flag]"
	default:
		return "[unknown]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
