// Package logs maintains the operator-facing application log: a rolling
// JSON-line file with a bounded line count, an API for tailing it, and live
// fan-out to SSE subscribers.
package logs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timeLayout keeps log timestamps human-readable in the file and UI.
const timeLayout = "2006-01-02 15:04:05"

// Entry is one log line as stored on disk and served over the API.
type Entry struct {
	Time    string         `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// Service owns the rolling log file. All methods are safe for concurrent
// use. Logging failures are swallowed; the log is an aid, not a dependency.
type Service struct {
	mu          sync.Mutex
	path        string
	maxLines    int
	lineCount   int
	counted     bool
	subscribers map[string]chan Entry
}

// NewService creates a log service writing to path, truncating to the
// newest half whenever the file reaches maxLines entries.
func NewService(path string, maxLines int) *Service {
	if maxLines < 2 {
		maxLines = 2000
	}
	return &Service{
		path:        path,
		maxLines:    maxLines,
		subscribers: make(map[string]chan Entry),
	}
}

// Append writes an entry to the file and fans it out to subscribers.
func (s *Service) Append(e Entry) {
	if e.Time == "" {
		e.Time = time.Now().Format(timeLayout)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.appendLocked(line)
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) appendLocked(line []byte) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return
	}

	if !s.counted {
		s.lineCount = s.countLines()
		s.counted = true
	}

	// Rolling truncation: drop the oldest half when over the limit.
	if s.lineCount >= s.maxLines {
		if lines, err := s.readLines(); err == nil {
			keep := lines[len(lines)/2:]
			if err := os.WriteFile(s.path, []byte(joinLines(keep)), 0o644); err == nil {
				s.lineCount = len(keep)
			}
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", line); err == nil {
		s.lineCount++
	}
}

// Tail returns the newest n entries, oldest first. Lines that fail to parse
// come back as RAW entries rather than being dropped.
func (s *Service) Tail(n int) []Entry {
	s.mu.Lock()
	lines, err := s.readLines()
	s.mu.Unlock()
	if err != nil {
		return []Entry{}
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	out := make([]Entry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			out = append(out, Entry{Time: "?", Level: "RAW", Message: line})
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear truncates the log file.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, nil, 0o644); err == nil {
		s.lineCount = 0
		s.counted = true
	}
}

// Stats summarizes the log ring.
type Stats struct {
	Entries     int `json:"entries"`
	MaxLines    int `json:"max_lines"`
	Subscribers int `json:"subscribers"`
}

// Stats returns the current entry count, cap, and live follower count.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.counted {
		s.lineCount = s.countLines()
		s.counted = true
	}
	return Stats{
		Entries:     s.lineCount,
		MaxLines:    s.maxLines,
		Subscribers: len(s.subscribers),
	}
}

// Subscribe registers a live log follower. The returned function
// unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan Entry, func()) {
	id := uuid.New().String()
	ch := make(chan Entry, 64)

	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
		s.mu.Unlock()
	}
}

func (s *Service) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func (s *Service) countLines() int {
	lines, err := s.readLines()
	if err != nil {
		return 0
	}
	return len(lines)
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
