package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// linkRunner executes pw-link with the given arguments and returns its stdout
type linkRunner func(args ...string) ([]byte, error)

func runPWLink(args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.Command("pw-link", args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("pw-link %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// PipeWire queries and links ports of the PipeWire JACK graph
type PipeWire struct {
	run   linkRunner
	sleep func(time.Duration)
}

// NewPipeWire returns a PipeWire graph client backed by the pw-link tool
func NewPipeWire() *PipeWire {
	return &PipeWire{run: runPWLink, sleep: time.Sleep}
}

// AllPorts returns every input and output port in the graph
func (pw *PipeWire) AllPorts() ([]string, error) {
	return pw.ports("-io")
}

// SourcePorts returns the graph outputs audio can be captured from
func (pw *PipeWire) SourcePorts() ([]string, error) {
	return pw.ports("-o")
}

func (pw *PipeWire) ports(flag string) ([]string, error) {
	out, err := pw.run(flag)
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(out)), nil
}

// parsePortList extracts port names from pw-link listing output
func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "ports:") {
			continue
		}
		ports = append(ports, line)
	}
	return ports
}

// CheckSource verifies that name is present exactly once in the graph
func (pw *PipeWire) CheckSource(name string) error {
	ports, err := pw.AllPorts()
	if err != nil {
		return err
	}
	return checkPortIn(name, ports)
}

func checkPortIn(name string, ports []string) error {
	if name == "" {
		return fmt.Errorf("port name cannot be empty")
	}
	switch n := countPort(name, ports); {
	case n == 0:
		return fmt.Errorf("%w: port %s", ErrDeviceNotFound, name)
	case n > 1:
		return fmt.Errorf("port %s is registered %d times, close the conflicting application", name, n)
	}
	return nil
}

func countPort(name string, ports []string) int {
	n := 0
	for _, port := range ports {
		if port == name {
			n++
		}
	}
	return n
}

func (pw *PipeWire) hasPort(name string) bool {
	ports, err := pw.AllPorts()
	if err != nil {
		slog.Debug("Port lookup failed", "port", name, "error", err)
		return false
	}
	return countPort(name, ports) > 0
}

// awaitPort polls the graph until name appears, the timeout elapses or stop closes
func (pw *PipeWire) awaitPort(name string, timeout time.Duration, stop <-chan struct{}) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for !pw.hasPort(name) {
		select {
		case <-stop:
			return fmt.Errorf("stopped while waiting for port %s", name)
		case <-deadline:
			return fmt.Errorf("timeout waiting for port %s", name)
		case <-tick.C:
		}
	}
	slog.Debug("Port registered", "port", name)
	return nil
}

// linkPolicy bounds how long Link keeps retrying a source port
type linkPolicy struct {
	attempts int
	delay    time.Duration
}

// policyFor gives application ports (browsers, players) more time to show up than hardware ports
func policyFor(port string) linkPolicy {
	if isEphemeralPort(port) {
		return linkPolicy{attempts: 15, delay: time.Second}
	}
	return linkPolicy{attempts: 5, delay: 500 * time.Millisecond}
}

// Link connects source to dest, retrying while the source port is missing or the link fails
func (pw *PipeWire) Link(source, dest string) error {
	policy := policyFor(source)
	var lastErr error
	for attempt := 1; attempt <= policy.attempts; attempt++ {
		if !pw.hasPort(source) {
			lastErr = fmt.Errorf("%w: port %s", ErrDeviceNotFound, source)
		} else if _, lastErr = pw.run(source, dest); lastErr == nil {
			slog.Debug("Linked ports", "source", source, "dest", dest, "attempt", attempt)
			return nil
		}
		slog.Debug("Link attempt failed", "source", source, "dest", dest, "attempt", attempt, "error", lastErr)
		if attempt < policy.attempts {
			pw.sleep(policy.delay)
		}
	}
	return fmt.Errorf("failed to link %s to %s after %d attempts: %w", source, dest, policy.attempts, lastErr)
}

var ephemeralApps = []string{
	"chrome", "firefox", "spotify", "discord", "steam",
	"vlc", "mpv", "zoom", "teams", "slack", "wire",
}

// isEphemeralPort reports whether the port belongs to an application that may come and go
func isEphemeralPort(port string) bool {
	lower := strings.ToLower(port)
	for _, app := range ephemeralApps {
		if strings.Contains(lower, app) {
			return true
		}
	}
	return false
}

// defaultSourcePort picks the first hardware capture port, or the first port at all
func defaultSourcePort(ports []string) (string, bool) {
	for _, port := range ports {
		if strings.Contains(port, "capture") {
			return port, true
		}
	}
	if len(ports) > 0 {
		return ports[0], true
	}
	return "", false
}
