// Package cache implements the archive-content side-car cache: one row per
// archive under a ROM root, capturing its member list together with the
// (mtime, size, detector, hash-type coverage) tuple that row is valid for.
// A cache hit lets the caller skip rescanning an archive entirely; a row
// whose hash-type coverage falls short of what the current run needs
// triggers a targeted rescan of just the missing types rather than the
// whole archive.
//
// Persistence follows the same atomic-write discipline the directory
// archive backend uses for its members (see pkg/fsutil), via
// natefinch/atomic, and uses encoding/gob rather than a schema'd format:
// this is a single-process side-car file, not a shared wire format, so a
// protobuf/flatbuffers layer would add ceremony with no corresponding
// benefit.
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"time"

	natefinchatomic "github.com/natefinch/atomic"

	"github.com/nih-at/ckmame-sub001/pkg/ckerr"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Row is one archive's cached state.
type Row struct {
	Mtime      time.Time
	Size       int64
	DetectorID [32]byte
	HashTypes  romhash.Type
	Members    []filerecord.File
}

// Store is the side-car cache for a single ROM root. It is safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	rows  map[string]Row
	dirty bool
}

// Open loads the side-car cache file at path, or returns an empty Store if
// it does not yet exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, rows: make(map[string]Row)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, ckerr.NewIO(path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s.rows); err != nil {
		return nil, &ckerr.FormatError{Path: path, Reason: err.Error()}
	}
	return s, nil
}

// Get returns the cached row for archive and whether it is valid for the
// given current (mtime, size, detector, requested hash types). A detector
// change invalidates the row wholesale — there is no migration path for a
// row cached under a different detector, since the member hashes it holds
// were computed over that detector's window, not the new one.
func (s *Store) Get(archive string, mtime time.Time, size int64, detectorID [32]byte, requested romhash.Type) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[archive]
	if !ok {
		return Row{}, false
	}
	if !row.Mtime.Equal(mtime) || row.Size != size || row.DetectorID != detectorID {
		return Row{}, false
	}
	if row.HashTypes&requested != requested {
		return Row{}, false
	}
	return row, true
}

// Missing returns the subset of requested not yet covered by row, for
// callers that found a row whose identity (mtime/size/detector) still
// matches but whose hash-type coverage falls short — these callers rescan
// only the missing types rather than treating the whole row as stale.
func Missing(row Row, requested romhash.Type) romhash.Type {
	return requested &^ row.HashTypes
}

// Put installs or replaces the row for archive.
func (s *Store) Put(archive string, row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[archive] = row
	s.dirty = true
}

// Delete removes archive's row, per the rule that an archive committed
// empty has its cache row deleted rather than rewritten.
func (s *Store) Delete(archive string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[archive]; ok {
		delete(s.rows, archive)
		s.dirty = true
	}
}

// Rows returns a snapshot of every row currently held, for populating the
// in-memory global index at startup.
func (s *Store) Rows() map[string]Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Row, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out
}

// Flush persists the store to disk if it has been modified since the last
// Flush, via a temp-file-plus-rename so readers never observe a partially
// written cache.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.rows); err != nil {
		return fmt.Errorf("cache: %s: encode: %w", s.path, err)
	}
	if err := natefinchatomic.WriteFile(s.path, &buf); err != nil {
		return ckerr.NewIO(s.path, err)
	}
	s.dirty = false
	return nil
}
