// Package transcript provides NDJSON conversation logging: one file per
// user/session pair, plus an optional combined log. Writes are queued and
// flushed by a background goroutine so chat handlers never block on disk.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged conversation message.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger accepts conversation events. Implementations must never block the
// caller on I/O.
type Logger interface {
	Log(event Event)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event) {}

func (Noop) Close() error { return nil }

// FileLogger writes events as NDJSON lines under Dir/userID/sessionID.ndjson.
type FileLogger struct {
	cfg    Config
	queue  chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewLogger creates a transcript logger for the given config. When logging
// is disabled it returns a Noop logger.
func NewLogger(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create transcript directory: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global transcript directory: %w", err)
		}
	}

	l := &FileLogger{
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues an event. When the queue is full the event is dropped with a
// warning; chat latency wins over transcript completeness.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = CleanForReadability(event.ContentRaw)
	}

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close drains the queue and stops the writer goroutine.
func (l *FileLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.queue:
			l.write(event)
		case <-l.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case event := <-l.queue:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *FileLogger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled {
		path := filepath.Join(l.cfg.Dir, sanitizePathComponent(event.UserID), sanitizePathComponent(event.SessionID)+".ndjson")
		l.appendLine(path, line)
	}
	if l.cfg.GlobalEnabled {
		l.appendLine(l.cfg.GlobalPath, line)
	}
}

func (l *FileLogger) appendLine(path string, line []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		l.logger.Warn("failed to create transcript directory", "path", path, "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.logger.Warn("failed to open transcript file", "path", path, "error", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("failed to close transcript file", "path", path, "error", closeErr)
		}
	}()

	if _, err := f.Write(line); err != nil {
		l.logger.Warn("failed to write transcript line", "path", path, "error", err)
	}
}

// sanitizePathComponent keeps user-supplied ids from escaping the transcript
// directory.
func sanitizePathComponent(s string) string {
	s = strings.ReplaceAll(s, string(filepath.Separator), "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		return "unknown"
	}
	return s
}

var (
	ansiEscapes  = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	controlRunes = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// CleanForReadability strips ANSI escape sequences and control characters so
// the readable copy of a message stays grep-friendly.
func CleanForReadability(raw string) string {
	clean := ansiEscapes.ReplaceAllString(raw, "")
	clean = controlRunes.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}
