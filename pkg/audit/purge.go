package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Purge removes events older than days. Lines that cannot be parsed, or
// carry no readable timestamp, are kept. It returns the number of removed
// events.
func (l *Log) Purge(days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", days)
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".audit-purge-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create purge file: %w", err)
	}
	defer os.Remove(tmp.Name())

	removed := 0
	var writeErr error
	err = scanLines(src, func(line []byte) {
		if writeErr != nil {
			return
		}
		if expired(line, cutoff) {
			removed++
			return
		}
		if _, err := tmp.Write(line); err != nil {
			writeErr = err
			return
		}
		if _, err := tmp.Write([]byte{'\n'}); err != nil {
			writeErr = err
		}
	})
	if err == nil {
		err = writeErr
	}
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		if reopenErr := l.reopen(); reopenErr != nil {
			return 0, fmt.Errorf("failed to replace audit log: %w (reopen: %v)", err, reopenErr)
		}
		return 0, fmt.Errorf("failed to replace audit log: %w", err)
	}
	if err := l.reopen(); err != nil {
		return removed, err
	}
	return removed, nil
}

func expired(line []byte, cutoff time.Time) bool {
	var head struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, head.Timestamp)
	if err != nil {
		return false
	}
	return ts.Before(cutoff)
}
