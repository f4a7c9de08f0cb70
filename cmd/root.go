package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/jamscribe/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int

	// capture overrides
	deviceName   string
	backendName  string
	segmentCount int
)

var rootCmd = &cobra.Command{
	Use:   "jamscribe",
	Short: "Continuous audio capture with segment transcription",
	Long: `JamScribe records live audio from an input device in fixed-length
segments, alternating between two WAV files, and sends every finished
segment to a transcription endpoint while the next one is recording.

Transcripts are appended to a shared log file. Without a subcommand
jamscribe records until interrupted, like 'jamscribe record'.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// The development endpoint runs without a capture configuration
		if cmd.Name() == "endpoint" {
			return nil
		}

		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd)
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/jamscribe.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "input device name, exact match (overrides config, default is the system default input)")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "audio backend: portaudio, pipewire, synthetic (overrides config)")
	rootCmd.Flags().IntVarP(&segmentCount, "count", "n", -1, "stop after this many segments, 0 records forever (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(endpointCmd)
}

// loadConfig resolves the configuration file and profile, falling back to
// the built-in defaults when the default file does not exist
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = os.ExpandEnv("$HOME/.config/jamscribe.yaml")
	}

	var loaded *config.Config
	if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) && !explicit && profile == "" {
		slog.Debug("No config file found, using built-in defaults", "path", cfgFile)
		loaded = config.Default()
		cfgFile = ""
	} else {
		loaded, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyOverrides(cmd, loaded)

	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loaded, nil
}

// applyOverrides copies explicitly set command line flags into the config
func applyOverrides(cmd *cobra.Command, c *config.Config) {
	if flagChanged(cmd, "device") {
		c.Audio.Device = deviceName
		c.Inheritance["audio.device"] = "flag"
	}
	if flagChanged(cmd, "backend") {
		c.Audio.Backend = backendName
		c.Inheritance["audio.backend"] = "flag"
	}
	if flagChanged(cmd, "count") {
		c.Segment.Count = segmentCount
		c.Inheritance["segment.count"] = "flag"
	}
}

// flagChanged reports whether a local or persistent flag was set on the command line
func flagChanged(cmd *cobra.Command, name string) bool {
	return cmd.Flags().Changed(name) ||
		cmd.PersistentFlags().Changed(name) ||
		cmd.InheritedFlags().Changed(name)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2:
		// Level 2 additionally surfaces ffmpeg output from the PipeWire backend
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if level >= 2 {
		os.Setenv("FFMPEG_LOGLEVEL", "info")
	}
}
