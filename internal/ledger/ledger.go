// Package ledger implements the durable set of already-ingested record IDs.
// The on-disk format is one ID per line, append-only, so a restart reloads
// the full set and the no-reingest invariant survives process death.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is a file-backed ID set safe for concurrent use.
type File struct {
	mu   sync.Mutex
	path string
	ids  map[string]struct{}
	out  *os.File
}

// Open loads the ledger at path, creating it (and its directory) if absent.
func Open(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	ids := make(map[string]struct{})
	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			id := strings.TrimSpace(scanner.Text())
			if id != "" {
				ids[id] = struct{}{}
			}
		}
		scanErr := scanner.Err()
		if cerr := existing.Close(); cerr != nil && scanErr == nil {
			scanErr = cerr
		}
		if scanErr != nil {
			return nil, fmt.Errorf("load ledger %s: %w", path, scanErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	out, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	return &File{path: path, ids: ids, out: out}, nil
}

// AddIfAbsent appends the ID durably unless it is already present. The
// check and the append happen under one lock so concurrent accept() calls
// cannot both claim the same ID.
func (l *File) AddIfAbsent(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.ids[id]; dup {
		return false, nil
	}
	if _, err := fmt.Fprintln(l.out, id); err != nil {
		return false, fmt.Errorf("append ledger entry %s: %w", id, err)
	}
	if err := l.out.Sync(); err != nil {
		return false, fmt.Errorf("sync ledger: %w", err)
	}
	l.ids[id] = struct{}{}
	return true, nil
}

// Contains reports whether the ID has been ingested.
func (l *File) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Len returns the number of ingested IDs.
func (l *File) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Close releases the append handle.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
