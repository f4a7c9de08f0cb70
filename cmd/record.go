package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/jamscribe/internal/config"
	"github.com/audiolibrelab/jamscribe/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record segments and send them for transcription",
	Long: `Record audio from the selected input device in fixed-length segments.
Segments alternate between two WAV files; every finished segment is posted
to the transcription endpoint and the response is appended to the log file.

Press Ctrl+C to stop: the active segment is finalized and uploaded before exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd)
	},
}

func runRecord(cmd *cobra.Command) error {
	slog.Info("Record command started",
		"backend", cfg.Audio.Backend,
		"device", cfg.Audio.Device,
		"segment", cfg.Segment.Duration,
		"endpoint", cfg.Upload.Endpoint,
		"log", cfg.Log.Path)

	svc, err := service.New(cfg, cfgFile, activeProfileName())
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer svc.Close()

	// Handle interruption
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Recording... Press Ctrl+C to stop")
	if err := svc.Run(ctx); err != nil {
		return err
	}

	slog.Info("Recording stopped", "segments", svc.Status().Segments)
	return nil
}

// activeProfileName returns the profile the configuration was resolved from
func activeProfileName() string {
	if profile != "" {
		return profile
	}
	if cfgFile == "" {
		return "built-in"
	}
	root, err := config.ReadRootConfig(cfgFile)
	if err != nil || root.ActiveConfig == "" {
		return "default"
	}
	return root.ActiveConfig
}

func init() {
	recordCmd.Flags().IntVarP(&segmentCount, "count", "n", -1, "stop after this many segments, 0 records forever (overrides config)")
}
