package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/jamscribe/internal/audio"
	"github.com/audiolibrelab/jamscribe/internal/config"
	"github.com/audiolibrelab/jamscribe/internal/metrics"
	"github.com/audiolibrelab/jamscribe/internal/segment"
	"github.com/audiolibrelab/jamscribe/internal/server"
	"github.com/audiolibrelab/jamscribe/internal/upload"
)

// Service represents the core capture service interface
type Service interface {
	// Capture operations
	Run(ctx context.Context) error
	Status() segment.Status

	// Information operations
	GetConfig() *config.Config
	ListSources() ([]string, error)
	GetLastError() string

	Close() error
}

var _ Service = (*JamScribeService)(nil)

// JamScribeService wires the backend, controller, dispatcher, transcript log
// and status server for one resolved configuration
type JamScribeService struct {
	cfg        *config.Config
	configFile string
	profile    string

	backend    audio.Backend
	device     audio.Device
	stream     audio.StreamConfig
	log        *upload.TranscriptLog
	dispatcher *upload.Dispatcher
	controller *segment.Controller
	metrics    *metrics.Metrics

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New opens the input device and the transcript log. Failures here are fatal
// for the caller.
func New(cfg *config.Config, configFile, profile string) (*JamScribeService, error) {
	stream, err := audio.StreamConfigFrom(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid audio configuration: %w", err)
	}

	backend, err := audio.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", cfg.Audio.Backend, err)
	}

	device, err := audio.OpenInput(backend, cfg.Audio.Device)
	if err != nil {
		backend.Close()
		return nil, err
	}
	slog.Info("Input device", "name", device.Name(), "backend", backend.GetType())

	rotation, err := segment.NewRotation(cfg.SlotPath)
	if err != nil {
		backend.Close()
		return nil, err
	}

	log, err := upload.OpenLog(cfg.Log.Path)
	if err != nil {
		backend.Close()
		return nil, err
	}

	m := metrics.NewMetrics()
	client := upload.NewClient(cfg.Upload.Endpoint, cfg.Upload.Timeout)
	dispatcher := upload.NewDispatcher(client, log, cfg.Upload.MaxInFlight, cfg.Upload.Timeout, m)

	controller, err := segment.NewController(device, stream, rotation, dispatcher, segment.Options{
		Duration: cfg.Segment.Duration,
		Limit:    cfg.Segment.Count,
		Metrics:  m,
	})
	if err != nil {
		log.Close()
		backend.Close()
		return nil, err
	}

	return &JamScribeService{
		cfg:        cfg,
		configFile: configFile,
		profile:    profile,
		backend:    backend,
		device:     device,
		stream:     stream,
		log:        log,
		dispatcher: dispatcher,
		controller: controller,
		metrics:    m,
	}, nil
}

// Run records until ctx is cancelled or the segment limit is reached, then
// waits for outstanding uploads
func (s *JamScribeService) Run(ctx context.Context) error {
	s.clearLastError()

	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan struct{})
	if s.cfg.Server.Addr != "" {
		srv := server.New(s.cfg, s.configFile, s.profile, s.controller, s.backend, s.log, s.metrics)
		go func() {
			defer close(serverDone)
			if err := srv.Run(serverCtx, s.cfg.Server.Addr, s.cfg.Server.Advertise); err != nil {
				slog.Error("Status server failed", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}
	defer func() {
		stopServer()
		<-serverDone
	}()

	runErr := s.controller.Run(ctx)
	if runErr != nil {
		s.setLastError(fmt.Sprintf("Capture failed: %v", runErr))
	}

	if err := s.waitForUploads(); err != nil {
		slog.Warn("Abandoning uploads", "error", err)
	}
	return runErr
}

// waitForUploads gives in-flight uploads one request timeout to finish
func (s *JamScribeService) waitForUploads() error {
	timeout := s.cfg.Upload.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Debug("Waiting for uploads to finish", "timeout", timeout)
	return s.dispatcher.Wait(ctx)
}

// Status returns the controller snapshot
func (s *JamScribeService) Status() segment.Status {
	return s.controller.Status()
}

// GetConfig returns the current configuration
func (s *JamScribeService) GetConfig() *config.Config {
	return s.cfg
}

// ListSources lists the input devices of the configured backend
func (s *JamScribeService) ListSources() ([]string, error) {
	return s.backend.ListInputDevices()
}

// Close releases the transcript log and the backend
func (s *JamScribeService) Close() error {
	return errors.Join(s.log.Close(), s.backend.Close())
}

// GetLastError returns the last error message (thread-safe)
func (s *JamScribeService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *JamScribeService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *JamScribeService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
