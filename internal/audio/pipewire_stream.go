package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// jackClientName is the JACK client ffmpeg registers; its ports are input_1..input_N
const jackClientName = "jamscribe"

const defaultChunkFrames = 1024

type pipeWireDevice struct {
	pipewire *PipeWire
	port     string
}

func newPipeWireDevice(pw *PipeWire, port string) *pipeWireDevice {
	return &pipeWireDevice{pipewire: pw, port: port}
}

func (d *pipeWireDevice) Name() string {
	return d.port
}

// BuildInputStream prepares a pw-jack ffmpeg capture of the device port. Every
// ffmpeg input channel is connected to the same source port.
func (d *pipeWireDevice) BuildInputStream(cfg StreamConfig, onData DataCallback, onError ErrorCallback) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("unsupported stream config: %w", err)
	}
	for _, tool := range []string{"pw-jack", "ffmpeg", "pw-link"} {
		if _, err := exec.LookPath(tool); err != nil {
			return nil, fmt.Errorf("%s not found in PATH: %w", tool, err)
		}
	}
	if onError == nil {
		onError = func(error) {}
	}

	return &pipeWireStream{
		device:  d,
		cfg:     cfg,
		onData:  onData,
		onError: onError,
		stop:    make(chan struct{}),
	}, nil
}

// pipeWireStream runs ffmpeg as a JACK client and decodes raw PCM from its stdout
type pipeWireStream struct {
	device  *pipeWireDevice
	cfg     StreamConfig
	onData  DataCallback
	onError ErrorCallback

	mutex      sync.Mutex
	ffmpegCmd  *exec.Cmd
	readerDone chan struct{}
	stop       chan struct{}
	closeOnce  sync.Once
	closeErr   error

	stderrMutex sync.Mutex
	lastStderr  string
}

// ffmpegArgs builds the pw-jack ffmpeg command line for a raw PCM capture to stdout
func ffmpegArgs(cfg StreamConfig) []string {
	codec, container := rawFormat(cfg.Format)
	logLevel := os.Getenv("FFMPEG_LOGLEVEL")
	if logLevel == "" {
		logLevel = "error"
	}
	return []string{
		"pw-jack",
		"ffmpeg",
		"-hide_banner",
		"-nostdin",
		"-loglevel", logLevel,
		"-f", "jack",
		"-channels", fmt.Sprintf("%d", cfg.Channels),
		"-i", jackClientName,
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-ac", fmt.Sprintf("%d", cfg.Channels),
		"-c:a", codec,
		"-f", container,
		"-",
	}
}

func rawFormat(f SampleFormat) (codec, container string) {
	switch f {
	case FormatInt32:
		return "pcm_s32le", "s32le"
	case FormatFloat32:
		return "pcm_f32le", "f32le"
	default:
		return "pcm_s16le", "s16le"
	}
}

func chunkFrames(cfg StreamConfig) int {
	if frames := cfg.BufferSize.Frames(); frames > 0 {
		return frames
	}
	return defaultChunkFrames
}

func (s *pipeWireStream) Play() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.ffmpegCmd != nil {
		return fmt.Errorf("stream already playing")
	}

	args := ffmpegArgs(s.cfg)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PIPEWIRE_LATENCY=%d/%d", chunkFrames(s.cfg), s.cfg.SampleRate))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Info("Starting PipeWire FFmpeg", "command", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s.ffmpegCmd = cmd
	s.readerDone = make(chan struct{})

	go s.readSamples(stdout)
	go s.readOutput(stderr)
	go s.connectSource()

	return nil
}

// connectSource links the device port to every ffmpeg input port
func (s *pipeWireStream) connectSource() {
	for i := 1; i <= int(s.cfg.Channels); i++ {
		destPort := fmt.Sprintf("%s:input_%d", jackClientName, i)

		if err := s.device.pipewire.awaitPort(destPort, 5*time.Second, s.stop); err != nil {
			s.onError(fmt.Errorf("FFmpeg JACK port did not appear: %w", err))
			return
		}
		if err := s.device.pipewire.Link(s.device.port, destPort); err != nil {
			s.onError(err)
			continue
		}
		slog.Info("Connected source successfully", "source", s.device.port, "dest", destPort)
	}
}

// readSamples decodes whole frames from ffmpeg's stdout into callbacks
func (s *pipeWireStream) readSamples(r io.Reader) {
	defer close(s.readerDone)

	frameBytes := int(s.cfg.Channels) * s.cfg.Format.SampleSize()
	chunk := make([]byte, chunkFrames(s.cfg)*frameBytes)

	for {
		n, err := io.ReadFull(r, chunk)
		if whole := n - n%frameBytes; whole > 0 {
			s.onData(decodeRaw(s.cfg.Format, chunk[:whole]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.onError(fmt.Errorf("failed to read FFmpeg output: %w", err))
			} else if !s.stopped() {
				s.onError(fmt.Errorf("FFmpeg capture ended unexpectedly: %s", s.stderrTail()))
			}
			return
		}
	}
}

// readOutput logs ffmpeg diagnostics and keeps the last line for error reports
func (s *pipeWireStream) readOutput(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		s.stderrMutex.Lock()
		s.lastStderr = line
		s.stderrMutex.Unlock()
		slog.Debug("FFmpeg output", "stream", "stderr", "line", line)
	}
}

func (s *pipeWireStream) stderrTail() string {
	s.stderrMutex.Lock()
	defer s.stderrMutex.Unlock()
	return s.lastStderr
}

func (s *pipeWireStream) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *pipeWireStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)

		s.mutex.Lock()
		defer s.mutex.Unlock()
		s.closeErr = s.stopFFmpeg()
	})
	return s.closeErr
}

// stopFFmpeg interrupts ffmpeg, drains its output and reaps the process
func (s *pipeWireStream) stopFFmpeg() error {
	if s.ffmpegCmd == nil {
		return nil
	}
	cmd := s.ffmpegCmd
	s.ffmpegCmd = nil

	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to FFmpeg process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to FFmpeg, falling back to SIGKILL", "error", err)
			cmd.Process.Kill()
		}
	}

	select {
	case <-s.readerDone:
	case <-time.After(5 * time.Second):
		slog.Warn("FFmpeg did not exit within timeout, force killing")
		cmd.Process.Kill()
		<-s.readerDone
	}

	err := cmd.Wait()
	if err == nil {
		slog.Debug("FFmpeg exited successfully")
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit code 255 means ffmpeg was interrupted gracefully
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				slog.Debug("FFmpeg exited due to signal", "state", state)
				return nil
			}
		}
	}
	return fmt.Errorf("FFmpeg process failed: %w (%s)", err, s.stderrTail())
}

// decodeRaw converts little-endian interleaved PCM bytes into a Buffer
func decodeRaw(f SampleFormat, data []byte) Buffer {
	switch f {
	case FormatInt32:
		out := make(Int32Buffer, len(data)/4)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out
	case FormatFloat32:
		out := make(Float32Buffer, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out
	default:
		out := make(Int16Buffer, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out
	}
}
