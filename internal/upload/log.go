package upload

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is one line of the transcript log
type Entry struct {
	Sequence uint64    `json:"sequence"`
	Slot     int       `json:"slot"`
	Text     string    `json:"text"`
	Failed   bool      `json:"failed,omitempty"`
	Time     time.Time `json:"time"`
}

// TranscriptLog is the shared append-only log of transcription results.
// Each entry is written as its text followed by a newline under one lock, so
// entries from concurrent uploads never interleave.
type TranscriptLog struct {
	path string

	mutex sync.Mutex
	file  *os.File

	subMutex    sync.Mutex
	subscribers map[chan Entry]struct{}
}

// OpenLog creates (or truncates) the log file at path
func OpenLog(path string) (*TranscriptLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return &TranscriptLog{
		path:        path,
		file:        file,
		subscribers: make(map[chan Entry]struct{}),
	}, nil
}

// Path returns the log file path
func (l *TranscriptLog) Path() string {
	return l.path
}

// Append writes the entry text and a newline, then notifies subscribers
func (l *TranscriptLog) Append(entry Entry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	l.mutex.Lock()
	err := l.write(entry.Text)
	l.mutex.Unlock()
	if err != nil {
		return err
	}

	l.publish(entry)
	return nil
}

func (l *TranscriptLog) write(text string) error {
	if l.file == nil {
		return fmt.Errorf("log file %s is closed", l.path)
	}
	if _, err := l.file.WriteString(text); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	if _, err := l.file.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// Subscribe returns a channel of future entries and a function to stop the
// subscription. Slow subscribers miss entries rather than block uploads.
func (l *TranscriptLog) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 16)

	l.subMutex.Lock()
	l.subscribers[ch] = struct{}{}
	l.subMutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMutex.Lock()
			delete(l.subscribers, ch)
			l.subMutex.Unlock()
			close(ch)
		})
	}
}

func (l *TranscriptLog) publish(entry Entry) {
	l.subMutex.Lock()
	defer l.subMutex.Unlock()

	for ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Close closes the log file
func (l *TranscriptLog) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
