// Package errorlog records failed reviewer generations to a JSONL file.
package errorlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// EnvLogGenerationErrors enables the failure log when set to "true"
	EnvLogGenerationErrors = "LOG_GENERATION_ERRORS"

	// DefaultLogRetentionDays is the default number of days to retain error logs
	DefaultLogRetentionDays = 60

	logFileName = "generation-errors.log"
)

// Entry is one logged failure. Prompt and document text are never recorded.
type Entry struct {
	Timestamp   string `json:"timestamp"`
	RequestID   string `json:"request_id,omitempty"`
	Transport   string `json:"transport,omitempty"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
	Filename    string `json:"filename,omitempty"`
	PromptChars int    `json:"prompt_chars,omitempty"`
	FileBytes   int    `json:"file_bytes,omitempty"`
}

// Logger appends failure entries to a log file. A nil or disabled Logger
// ignores every call.
type Logger struct {
	enabled  bool
	logFile  *os.File
	logger   *logrus.Logger
	mu       sync.Mutex
	filePath string
	now      func() time.Time
}

// DefaultDir returns ~/.reviewer-api/logs
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".reviewer-api", "logs"), nil
}

// New opens the failure log in dir when enabled. Entries older than the
// retention period are dropped on open.
func New(logger *logrus.Logger, enabled bool, dir string) (*Logger, error) {
	if !enabled {
		return &Logger{enabled: false, logger: logger}, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		enabled:  true,
		logger:   logger,
		filePath: filepath.Join(dir, logFileName),
		now:      time.Now,
	}

	if err := l.reopenLogFileLocked(); err != nil {
		return nil, err
	}

	if err := l.rotateOldLogs(); err != nil {
		logger.WithError(err).Warn("Failed to rotate old generation error logs")
	}

	logger.Infof("Generation error logging enabled: %s", l.filePath)
	return l, nil
}

// Record appends an entry, stamping it with the current time
func (l *Logger) Record(entry Entry) {
	if l == nil || !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return
	}

	entry.Timestamp = l.now().Format(time.RFC3339)

	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.logger.WithError(err).Error("Failed to marshal generation error log entry")
		return
	}

	if _, err := l.logFile.Write(append(jsonData, '\n')); err != nil {
		l.logger.WithError(err).Error("Failed to write generation error log entry")
		return
	}

	if err := l.logFile.Sync(); err != nil {
		l.logger.WithError(err).Error("Failed to sync generation error log file")
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// IsEnabled returns whether error logging is enabled
func (l *Logger) IsEnabled() bool {
	return l != nil && l.enabled
}

// FilePath returns the path to the error log file
func (l *Logger) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// rotateOldLogs rewrites the log keeping only entries newer than the
// retention period. Malformed lines are kept.
func (l *Logger) rotateOldLogs() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return fmt.Errorf("failed to close log file for rotation: %w", err)
		}
		l.logFile = nil
	}

	file, err := os.Open(l.filePath)
	if err != nil {
		return l.reopenLogFileLocked()
	}

	var kept []string
	cutoff := l.now().AddDate(0, 0, -DefaultLogRetentionDays)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			kept = append(kept, line)
			continue
		}

		entryTime, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || entryTime.After(cutoff) {
			kept = append(kept, line)
		}
	}

	scanErr := scanner.Err()
	_ = file.Close()

	if scanErr != nil {
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("error reading log file during rotation: %w", scanErr)
	}

	content := ""
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}

	tmpPath := l.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to write temporary rotated log file: %w", err)
	}

	if err := os.Rename(tmpPath, l.filePath); err != nil {
		_ = os.Remove(tmpPath)
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to rename temporary log file during rotation: %w", err)
	}

	return l.reopenLogFileLocked()
}

// reopenLogFileLocked reopens the log file in append mode.
// Caller must hold l.mu.
func (l *Logger) reopenLogFileLocked() error {
	logFile, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open generation error log file: %w", err)
	}

	l.logFile = logFile
	return nil
}
