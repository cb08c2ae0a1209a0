// Package filerecord defines the expected/on-disk file record: a name, size,
// composite hash, status, and placement, together with the comparison
// operators the matcher and planner build on. The nil-safe, explicit-
// invariant style here follows the teacher's pkg/synchronization/core
// Entry type (EnsureValid, Equal), adapted to a flat record instead of a
// recursive tree.
package filerecord

import (
	"errors"
	"strings"
	"time"

	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Status describes whether a file's contents are known-good, a known-bad
// dump, or simply unknown to ever have existed (nodump).
type Status int

const (
	// StatusOK indicates the file's hashes are trusted.
	StatusOK Status = iota
	// StatusBaddump indicates the file is a known-bad dump: it exists and is
	// named correctly, but its content does not match any trusted hash.
	StatusBaddump
	// StatusNodump indicates no hash is known to exist for this file; any
	// member with the expected name satisfies it.
	StatusNodump
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBaddump:
		return "baddump"
	case StatusNodump:
		return "nodump"
	default:
		return "unknown"
	}
}

// Where records a file's placement: where it physically lives (or should
// live) relative to its owning game and the romset.
type Where int

const (
	// WhereNowhere indicates the file has not been located or placed.
	WhereNowhere Where = iota
	// WhereInGame indicates the file lives in the game's own archive.
	WhereInGame
	// WhereCloneOf indicates the file is merged: stored in the parent
	// game's archive.
	WhereCloneOf
	// WhereGrandCloneOf indicates the file is merged into the grandparent's
	// archive.
	WhereGrandCloneOf
	// WhereRomset indicates the file lives somewhere else in the romset
	// tree (used by the global index for already-placed candidates).
	WhereRomset
	// WhereNeeded indicates the file lives in the needed/ staging pool.
	WhereNeeded
	// WhereSuperfluous indicates the file is a romset member nothing needs.
	WhereSuperfluous
	// WhereExtra indicates the file lives outside the romset tree entirely
	// but matches a catalog hash.
	WhereExtra
	// WhereOld indicates the file was relocated from a prior layout and is
	// retained only for historical bookkeeping.
	WhereOld
	// WhereAdded is a transient placement: set while a mutation is staged,
	// cleared to WhereInGame on successful commit.
	WhereAdded
	// WhereDeleted is a transient tombstone placement: the entry survives
	// only for the duration of the enclosing transaction.
	WhereDeleted
)

// String implements fmt.Stringer.
func (w Where) String() string {
	switch w {
	case WhereNowhere:
		return "nowhere"
	case WhereInGame:
		return "ingame"
	case WhereCloneOf:
		return "cloneof"
	case WhereGrandCloneOf:
		return "grand-cloneof"
	case WhereRomset:
		return "romset"
	case WhereNeeded:
		return "needed"
	case WhereSuperfluous:
		return "superfluous"
	case WhereExtra:
		return "extra"
	case WhereOld:
		return "old"
	case WhereAdded:
		return "added"
	case WhereDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Kind distinguishes the three expected-file lists a game carries
// (spec.md §2 "Game" data model: files[ROM|DISK|SAMPLE]). ROMs and samples
// live inside a game's archive; disks are single-file blobs kept outside
// any archive container and swept separately by the planner (spec §4.9
// Step E).
type Kind int

const (
	KindROM Kind = iota
	KindDisk
	KindSample
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindDisk:
		return "disk"
	case KindSample:
		return "sample"
	default:
		return "rom"
	}
}

// File is a single expected or on-disk ROM/disk/sample record.
type File struct {
	// Name is the file's name as it appears (or should appear) inside its
	// archive.
	Name string
	// Kind distinguishes ROM/disk/sample; zero value is KindROM.
	Kind Kind
	// Hashes is the composite fingerprint, including size (see romhash.Size).
	Hashes romhash.Hashes
	// Status classifies how much trust to place in Hashes.
	Status Status
	// Where records the file's current or intended placement.
	Where Where
	// Merge is the name this file carries in its parent's archive, when
	// different from Name. Empty means "same name as in this game".
	Merge string
	// Mtime is the on-disk modification time, when known (zero value
	// otherwise).
	Mtime time.Time
}

// EnsureValid checks the invariants from the data model: a nodump file
// carries no CRC-32 (its contents are, by definition, unknown), and a
// deleted placement is only ever meaningful transiently (callers are
// responsible for erasing such entries at the end of a transaction, so this
// only validates the nodump invariant, which is the one invariant that can
// be checked from the record alone).
func (f File) EnsureValid() error {
	if f.Status == StatusNodump && f.Hashes.Has(romhash.CRC32) {
		return errors.New("filerecord: nodump file carries a CRC-32 hash")
	}
	return nil
}

// CompareSizeHashes implements the spec's compare_size_hashes: true iff the
// two records' sizes agree (or at least one has no recorded size) and their
// hash intersection does not disagree. An empty intersection (e.g. neither
// side shares a hash algorithm, only size) still counts as agreement here
// (it is the caller's job to additionally demand a size match or a shared
// hash type when that matters, e.g. for the zero-size special case).
func (f File) CompareSizeHashes(other File) bool {
	if sizeA, okA := f.Hashes.Size(); okA {
		if sizeB, okB := other.Hashes.Size(); okB && sizeA != sizeB {
			return false
		}
	}
	return f.Hashes.Compare(other.Hashes) != romhash.Mismatch
}

// CompareName implements the spec's compare_name: case-insensitive unless
// the archive backend preserves case (the caller passes caseSensitive=true
// for such backends).
func (f File) CompareName(other File, caseSensitive bool) bool {
	if caseSensitive {
		return f.Name == other.Name
	}
	return strings.EqualFold(f.Name, other.Name)
}

// IsMergable implements the spec's is_mergable: true iff this file's size
// and hashes match the parent's, and either this file declares no merge
// name or its merge name equals the parent's name.
func (f File) IsMergable(parent File) bool {
	if !f.CompareSizeHashes(parent) {
		return false
	}
	return f.Merge == "" || strings.EqualFold(f.Merge, parent.Name)
}

// EffectiveName returns the name this file is stored under within its
// owning archive: Merge if set, otherwise Name.
func (f File) EffectiveName() string {
	if f.Merge != "" {
		return f.Merge
	}
	return f.Name
}

// IsZeroSize reports whether the file's recorded size is known and zero.
func (f File) IsZeroSize() bool {
	size, ok := f.Hashes.Size()
	return ok && size == 0
}
