package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/audiolibrelab/jamscribe/internal/server"
	"github.com/spf13/cobra"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Run a local development transcription endpoint",
	Long: `Start a stand-in for the transcription service on /transcribe.
It decodes every uploaded WAV segment and answers with a one-line summary
(duration, format and peak level), so the capture loop can be exercised
without a speech-to-text backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		delay, _ := cmd.Flags().GetDuration("delay")

		mux := http.NewServeMux()
		mux.Handle("/transcribe", server.NewTranscribeHandler(delay))

		slog.Info("Development transcription endpoint starting",
			"addr", addr,
			"url", fmt.Sprintf("http://localhost%s/transcribe", addr))

		if err := http.ListenAndServe(addr, mux); err != nil {
			return fmt.Errorf("endpoint failed: %w", err)
		}
		return nil
	},
}

func init() {
	endpointCmd.Flags().String("addr", ":8009", "listen address for the endpoint")
	endpointCmd.Flags().Duration("delay", 200*time.Millisecond, "simulated processing time per request")
}
