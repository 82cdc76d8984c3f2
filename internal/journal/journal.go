// Package journal implements the append-only, line-delimited write-ahead
// log backing persistence recovery.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"icepeak/internal/store"
)

// Journal is a line-delimited JSON log of store.Modification entries, one
// per line, fsync'd on every append. It is safe for concurrent use, though
// in Icepeak it is in practice driven only by the Coordinator's single
// writer goroutine.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if necessary) the journal file at path for
// append/read.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{file: f, path: path}, nil
}

// Append writes m as one JSON line and fsyncs before returning, so a
// successful Append is durable across a crash.
func (j *Journal) Append(m store.Modification) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	return nil
}

// ReadAll streams every line currently in the journal, calling fn for each
// successfully-decoded Modification. Malformed lines are reported via
// badLine (not treated as fatal) so the caller can log and continue
// recovery. ReadAll seeks to the start of the file before reading and
// leaves the file position at EOF afterward, ready for further Append
// calls.
func (j *Journal) ReadAll(fn func(store.Modification), badLine func(line string, err error)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, 0); err != nil {
		return fmt.Errorf("journal: seek: %w", err)
	}
	scanner := bufio.NewScanner(j.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var m store.Modification
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			if badLine != nil {
				badLine(line, err)
			}
			continue
		}
		fn(m)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("journal: scan: %w", err)
	}
	if _, err := j.file.Seek(0, 2); err != nil {
		return fmt.Errorf("journal: seek to end: %w", err)
	}
	return nil
}

// Truncate empties the journal (called after a successful snapshot sync,
// once all entries are reflected durably on disk).
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Truncate(0); err != nil {
		return fmt.Errorf("journal: truncate: %w", err)
	}
	if _, err := j.file.Seek(0, 0); err != nil {
		return fmt.Errorf("journal: seek after truncate: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
