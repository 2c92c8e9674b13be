// Package history persists a local append-only log of pool runs so
// past results can be compared across invocations.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/talonlabs/talonfire/internal/harness"
)

// Entry is one recorded run. Entries are stored one JSON object per
// line so the log can be appended without rewriting.
type Entry struct {
	RunID       string          `json:"run_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Endpoint    string          `json:"endpoint"`
	Waves       int             `json:"waves"`
	Concurrency int             `json:"concurrency"`
	Summary     harness.Summary `json:"summary"`
}

// Store appends to and reads a JSONL history file. Concurrent
// processes are serialized with an advisory file lock next to the log.
type Store struct {
	path string
}

// DefaultPath returns the per-user history location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".talonfire", "history.jsonl"), nil
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewRunID mints a lexically sortable run identifier.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Append records one run at the end of the log, creating the log and
// its directory on first use.
func (s *Store) Append(entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking history file: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing history entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first. A missing log is an
// empty history, not an error. Lines that fail to decode are skipped
// so one corrupt record cannot hide the rest of the log.
func (s *Store) Recent(n int) ([]Entry, error) {
	lock := flock.New(s.path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking history file: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	// Reverse so the newest run comes first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
