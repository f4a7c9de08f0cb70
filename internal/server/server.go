package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/audiolibrelab/jamscribe/internal/audio"
	"github.com/audiolibrelab/jamscribe/internal/config"
	"github.com/audiolibrelab/jamscribe/internal/metrics"
	"github.com/audiolibrelab/jamscribe/internal/segment"
	"github.com/audiolibrelab/jamscribe/internal/upload"
)

// mDNS service type advertised for the status server
const serviceType = "_jamscribe._tcp"

// StatusProvider reports the controller state
type StatusProvider interface {
	Status() segment.Status
}

// Server exposes capture status, input sources, metrics and the live
// transcript feed over HTTP
type Server struct {
	status     StatusProvider
	backend    audio.Backend
	cfg        *config.Config
	configFile string
	profile    string
	log        *upload.TranscriptLog
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	// Recent transcript entries for /transcripts
	recentLock sync.RWMutex
	recent     []upload.Entry
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Capture       segment.Status      `json:"capture"`
	Config        *ResolvedConfigInfo `json:"resolved_config"`
	ActiveProfile string              `json:"active_profile"`
}

// ResolvedConfigInfo contains configuration information for clients
type ResolvedConfigInfo struct {
	Backend     string            `json:"backend"`
	Device      string            `json:"device"`
	Channels    int               `json:"channels"`
	SampleRate  int               `json:"sample_rate"`
	Format      string            `json:"format"`
	Segment     string            `json:"segment_duration"`
	Slots       []string          `json:"slots"`
	Endpoint    string            `json:"endpoint"`
	LogPath     string            `json:"log_path"`
	Inheritance map[string]string `json:"inheritance,omitempty"`
}

// SourceInfo contains information about an audio input
type SourceInfo struct {
	Name        string `json:"name"`
	Selected    bool   `json:"selected"`
	LastChecked string `json:"last_checked"`
}

// SourcesResponse represents the JSON response for sources endpoint
type SourcesResponse struct {
	Backend string       `json:"backend"`
	Sources []SourceInfo `json:"sources"`
}

// TranscriptsResponse represents the JSON response for transcripts endpoint
type TranscriptsResponse struct {
	Entries []upload.Entry `json:"entries"`
	LogPath string         `json:"log_path"`
}

const maxRecentEntries = 100

// New creates a status server instance
func New(cfg *config.Config, configFile, profile string, status StatusProvider, backend audio.Backend, log *upload.TranscriptLog, m *metrics.Metrics) *Server {
	return &Server{
		status:     status,
		backend:    backend,
		cfg:        cfg,
		configFile: configFile,
		profile:    profile,
		log:        log,
		metrics:    m,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 16,
		},
	}
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/config/profiles", s.handleProfiles)
	mux.HandleFunc("/transcripts", s.handleTranscripts)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string, advertise bool) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.log != nil {
		entries, cancel := s.log.Subscribe()
		defer cancel()
		go s.collectRecent(entries)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	if advertise {
		if shutdown := s.advertise(port); shutdown != nil {
			defer shutdown()
		}
	}

	httpServer := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting status server",
		"addr", listener.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), port))

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// advertise registers the server over mDNS and returns its shutdown function
func (s *Server) advertise(port int) func() {
	name := "jamscribe-" + strconv.Itoa(port)
	txt := []string{
		fmt.Sprintf("backend=%s", s.cfg.Audio.Backend),
		fmt.Sprintf("device=%s", s.cfg.Audio.Device),
		fmt.Sprintf("endpoint=%s", s.cfg.Upload.Endpoint),
	}

	server, err := zeroconf.Register(name, serviceType, "local.", port, txt, nil)
	if err != nil {
		slog.Warn("mDNS registration failed", "error", err)
		return nil
	}
	slog.Info("Advertised status server", "name", name, "service", serviceType, "port", port)
	return server.Shutdown
}

func (s *Server) collectRecent(entries <-chan upload.Entry) {
	for entry := range entries {
		s.recentLock.Lock()
		s.recent = append(s.recent, entry)
		if len(s.recent) > maxRecentEntries {
			s.recent = s.recent[len(s.recent)-maxRecentEntries:]
		}
		s.recentLock.Unlock()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "path", r.URL.Path)
		return
	}

	response := StatusResponse{
		Config:        s.getResolvedConfigInfo(),
		ActiveProfile: s.profile,
	}
	if s.status != nil {
		response.Capture = s.status.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getResolvedConfigInfo builds configuration information for clients
func (s *Server) getResolvedConfigInfo() *ResolvedConfigInfo {
	slots := make([]string, segment.SlotCount)
	for i := range slots {
		slots[i] = s.cfg.SlotPath(i)
	}

	return &ResolvedConfigInfo{
		Backend:     s.cfg.Audio.Backend,
		Device:      s.cfg.Audio.Device,
		Channels:    s.cfg.Audio.Channels,
		SampleRate:  s.cfg.Audio.SampleRate,
		Format:      s.cfg.Audio.SampleFormat,
		Segment:     s.cfg.Segment.Duration.String(),
		Slots:       slots,
		Endpoint:    s.cfg.Upload.Endpoint,
		LogPath:     s.cfg.Log.Path,
		Inheritance: s.cfg.Inheritance,
	}
}

// handleSources lists the input devices of the active backend
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "path", r.URL.Path)
		return
	}
	if s.backend == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "No audio backend available")
		return
	}

	names, err := s.backend.ListInputDevices()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to list input devices", "error", err)
		return
	}

	checked := time.Now().Format(time.RFC3339)
	sources := make([]SourceInfo, 0, len(names))
	for _, name := range names {
		sources = append(sources, SourceInfo{
			Name:        name,
			Selected:    name == s.cfg.Audio.Device,
			LastChecked: checked,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SourcesResponse{
		Backend: string(s.backend.GetType()),
		Sources: sources,
	})
}

// handleProfiles returns available configuration profiles
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "path", r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"profiles": s.getAvailableProfiles(),
		"active":   s.profile,
	})
}

func (s *Server) getAvailableProfiles() []string {
	profiles := []string{}
	if s.configFile == "" {
		return profiles
	}

	rootConfig, err := config.ReadRootConfig(s.configFile)
	if err != nil {
		slog.Debug("Failed to read config file for profiles", "error", err)
		return profiles
	}
	for profileName := range rootConfig.Configs {
		profiles = append(profiles, profileName)
	}
	sort.Strings(profiles)

	slog.Debug("Available profiles loaded", "profiles", profiles, "config_file", s.configFile)
	return profiles
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "path", r.URL.Path)
		return
	}

	s.recentLock.RLock()
	entries := append([]upload.Entry{}, s.recent...)
	s.recentLock.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscriptsResponse{Entries: entries, LogPath: s.cfg.Log.Path})
}

// handleWebSocket streams every new transcript entry as a JSON message
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "Transcript log not available")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	entries, cancel := s.log.Subscribe()
	defer cancel()

	// The reader only watches for the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("WebSocket read error", "error", err)
				}
				return
			}
		}
	}()

	slog.Debug("Transcript subscriber connected", "remote", r.RemoteAddr)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(entry); err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-closed:
			slog.Debug("Transcript subscriber disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

// getLocalIP returns the local IP address for network access
func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
