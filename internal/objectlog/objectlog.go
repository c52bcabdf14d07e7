// ABOUTME: Diagnostic dump of raw payloads into per-session folders
// ABOUTME: One pretty-printed JSON file per payload, named by time and trace id

package objectlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/pretty"
)

// Recorder persists payloads for offline inspection.
type Recorder interface {
	// Record writes a raw JSON payload for the session.
	Record(sessionID, traceID string, payload []byte) error
	// RecordObject marshals v to JSON and records it.
	RecordObject(sessionID, traceID string, v any) error
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(string, string, []byte) error { return nil }
func (discard) RecordObject(string, string, any) error { return nil }

const (
	folderTimeLayout = "2006-01-02+15.04.05"
	fileTimeLayout   = "15.04.05.000"
)

// Logger writes payloads under dir/<yyyy-MM-dd+HH.mm.ss>+<sessionId>/<HH.mm.ss.fff>+<traceId>.json.
// The folder timestamp is the first time the session was seen by this process.
type Logger struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // session id -> folder path
}

// New creates a Logger rooted at dir. The directory is created if needed.
func New(dir string, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating object log directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		dir:      dir,
		now:      time.Now,
		logger:   logger.With("component", "objectlog"),
		sessions: make(map[string]string),
	}, nil
}

// Dir returns the root directory.
func (l *Logger) Dir() string {
	return l.dir
}

// Record writes payload, pretty-printed, into the session's folder.
// Payloads without a session id are skipped.
func (l *Logger) Record(sessionID, traceID string, payload []byte) error {
	if sessionID == "" {
		return nil
	}
	if strings.TrimSpace(traceID) == "" {
		return fmt.Errorf("trace id is required")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload for trace %s is not valid JSON", traceID)
	}

	folder, err := l.sessionFolder(sessionID)
	if err != nil {
		return err
	}

	name := l.now().Format(fileTimeLayout) + "+" + sanitize(traceID) + ".json"
	path := filepath.Join(folder, name)
	if err := os.WriteFile(path, pretty.Pretty(payload), 0644); err != nil {
		return fmt.Errorf("writing object log: %w", err)
	}

	l.logger.Debug("object logged", "session", sessionID, "file", name)
	return nil
}

// RecordObject marshals v and records it.
func (l *Logger) RecordObject(sessionID, traceID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding object log: %w", err)
	}
	return l.Record(sessionID, traceID, data)
}

func (l *Logger) sessionFolder(sessionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if folder, ok := l.sessions[sessionID]; ok {
		// The pruner may have removed it since.
		if _, err := os.Stat(folder); err == nil {
			return folder, nil
		}
	}

	folder := filepath.Join(l.dir, l.now().Format(folderTimeLayout)+"+"+sanitize(sessionID))
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("creating session folder: %w", err)
	}
	l.sessions[sessionID] = folder
	return folder, nil
}

// forget drops cached folders that no longer exist.
func (l *Logger) forget() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, folder := range l.sessions {
		if _, err := os.Stat(folder); os.IsNotExist(err) {
			delete(l.sessions, id)
		}
	}
}

// sanitize makes an id safe for use in a file name.
func sanitize(id string) string {
	r := strings.NewReplacer(":", "-", "/", "-", "\\", "-")
	return r.Replace(id)
}
