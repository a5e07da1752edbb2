package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tradecore/pkg/types"
)

// FileArchive is an append-only JSONL sink for events. Each appended event
// is written as one JSON line and flushed before Append returns, preserving
// append order and all event fields. It is an adapter: the in-memory log
// remains the query surface; the file exists for durability and offline
// audit tooling.
type FileArchive struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenFileArchive opens (or creates) the archive file in append mode.
func OpenFileArchive(path string) (*FileArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &FileArchive{f: f, path: path}, nil
}

// Archive writes the event as a JSON line and syncs it to disk.
func (a *FileArchive) Archive(e types.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return a.f.Sync()
}

// Close closes the underlying file.
func (a *FileArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}
