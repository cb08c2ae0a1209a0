// Package ckerr defines the error kinds used throughout the engine (spec
// §7). Each kind is a small struct carrying the context a diagnostic line
// needs (archive/path/member) and wraps an underlying error where one
// exists, following the teacher's fmt.Errorf("...: %w", err) convention
// rather than a generic error-code enum.
package ckerr

import "fmt"

// IOError reports a filesystem or container-level read/write/rename/unlink
// failure.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIO constructs an IOError, or returns nil if err is nil (so callers can
// write `return ckerr.NewIO(path, err)` unconditionally after an I/O call).
func NewIO(path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Path: path, Err: err}
}

// FormatError reports that a cache or archive's contents are inconsistent
// with what this package expects to find.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: invalid format: %s", e.Path, e.Reason)
}

// HashMismatchError reports that an integrity re-check found different
// hashes than expected. This does not abort a run: the caller downgrades
// the offending file to baddump and continues (spec §7 propagation policy).
type HashMismatchError struct {
	Path     string
	Member   string
	Expected string
	Found    string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("%s/%s: hash mismatch: expected %s, found %s", e.Path, e.Member, e.Expected, e.Found)
}

// CatalogMissingError reports that an expected cross-reference (e.g. a
// parent game) was not found in the reference catalog.
type CatalogMissingError struct {
	Name string
}

func (e *CatalogMissingError) Error() string {
	return fmt.Sprintf("catalog: %q not found", e.Name)
}

// NameCollisionError reports that unique-name generation exhausted its
// attempt budget for an archive (spec §9 open question #3: treated as a
// hard error with a diagnostic line, not a silent abort).
type NameCollisionError struct {
	Archive string
	Name    string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("%s: could not find a unique name for %q after 1000 attempts", e.Archive, e.Name)
}

// ReadOnlyError reports a mutation attempted against a read-only archive.
type ReadOnlyError struct {
	Archive string
	Op      string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s: %s: archive is read-only", e.Archive, e.Op)
}

// StateError reports an operation invalid for a member's current placement.
type StateError struct {
	Archive string
	Member  string
	Op      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s/%s: %s: invalid in current state", e.Archive, e.Member, e.Op)
}
