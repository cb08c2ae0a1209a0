// Package archive defines the backend-independent archive contract: a
// handle over an ordered list of members where every mutating call is
// staged in memory and applied to disk only at Commit. Two concrete
// backends exist, pkg/archive/zipback and pkg/archive/dirback; both embed
// Core, which carries the staging bookkeeping common to either container
// shape, so a backend only needs to supply physical read/write and the
// handful of operations that touch disk (Commit, Rollback, ReadMember,
// ComputeHashes).
//
// The staged/commit split mirrors the way the teacher's synchronization
// core stages a reconciliation before any filesystem mutation runs: nothing
// here writes to disk until a caller explicitly asks it to.
package archive

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nih-at/ckmame-sub001/pkg/ckerr"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Kind distinguishes the two container shapes.
type Kind int

const (
	KindZip Kind = iota
	KindDirectory
)

// Location records which role an archive plays relative to the game being
// processed: the game's own archive, an ancestor's, or one of the
// well-known staging pools. The matcher's quality table and the report
// package's "should be in X, is in Y" diagnostic both key off this.
type Location int

const (
	LocationUnknown Location = iota
	LocationSelf
	LocationParent
	LocationGrandparent
	LocationNeeded
	LocationGarbage
	LocationExtra
)

func (l Location) String() string {
	switch l {
	case LocationSelf:
		return "self"
	case LocationParent:
		return "parent"
	case LocationGrandparent:
		return "grandparent"
	case LocationNeeded:
		return "needed"
	case LocationGarbage:
		return "garbage"
	case LocationExtra:
		return "extra"
	default:
		return "unknown"
	}
}

// Flag is the bitmask of open() modifiers.
type Flag uint8

const (
	FlagCreate Flag = 1 << iota
	FlagCheckIntegrity
	FlagQuiet
	FlagNoCache
	FlagReadOnly
	FlagTopLevelOnly
	FlagKeepEmpty
)

// Has reports whether every bit in want is set in f.
func (f Flag) Has(want Flag) bool {
	return f&want == want
}

// Handle is the contract both backends satisfy. Embedding *Core in a
// backend's Archive type promotes every method below except Commit,
// Rollback, ReadMember, and ComputeHashes, which require physical I/O and
// so are backend-specific.
type Handle interface {
	Path() string
	Location() Location
	Flags() Flag

	Files() []filerecord.File
	LiveIndices() []int
	FileAt(index int) (filerecord.File, bool)
	FileIndexByName(name string) (int, bool)
	FileIndex(f filerecord.File) (int, bool)

	AddEmpty(name string) (int, error)
	Copy(src Handle, srcIndex int, dstName string) (int, error)
	CopyPart(src Handle, srcIndex int, dstName string, offset, length int64, hasLength bool, expected filerecord.File) (int, error)
	Delete(index int) error
	Rename(index int, newName string) error
	RenameToUnique(index int) (string, error)

	ReadMember(index int) ([]byte, error)
	ComputeHashes(index int, mask romhash.Type) error

	Commit() error
	Rollback() error
}

type opKind int

const (
	opAddEmpty opKind = iota
	opCopy
	opCopyPart
	opDelete
	opRename
)

// StagedOp is one pending mutation. Its fields are exported so a backend's
// Commit can inspect what ComposeCommitPayloads has already resolved, but
// callers outside this package construct ops only through Core's staging
// methods.
type StagedOp struct {
	Kind       opKind
	Index      int
	OldName    string
	Name       string
	SrcArchive Handle
	SrcIndex   int
	Offset     int64
	Length     int64
	HasLength  bool
}

type member struct {
	file      filerecord.File
	tombstone bool
}

// Core holds the in-memory member list and staged-operation log shared by
// both backends.
type Core struct {
	path     string
	kind     Kind
	location Location
	flags    Flag
	members  []member
	baseline int
	staged   []StagedOp
}

// NewCore constructs a Core already populated with initial (the members
// discovered by scanning the container, or loaded from the side-car cache).
func NewCore(path string, kind Kind, location Location, flags Flag, initial []filerecord.File) *Core {
	members := make([]member, len(initial))
	for i, f := range initial {
		members[i] = member{file: f}
	}
	return &Core{
		path:     path,
		kind:     kind,
		location: location,
		flags:    flags,
		members:  members,
		baseline: len(members),
	}
}

func (c *Core) Path() string        { return c.path }
func (c *Core) Location() Location  { return c.location }
func (c *Core) Flags() Flag         { return c.flags }
func (c *Core) Kind() Kind          { return c.kind }

// LiveIndices returns the member-slice indices of every non-tombstoned
// member, in ascending order.
func (c *Core) LiveIndices() []int {
	var out []int
	for i, m := range c.members {
		if !m.tombstone {
			out = append(out, i)
		}
	}
	return out
}

// Files returns every live member, ignoring tombstoned (staged-for-delete)
// entries, matching file_index_by_name/file_index's "ignores tombstones"
// rule.
func (c *Core) Files() []filerecord.File {
	var out []filerecord.File
	for _, i := range c.LiveIndices() {
		out = append(out, c.members[i].file)
	}
	return out
}

// FileAt returns the file at a raw member-slice index, or false if the
// index is out of range or tombstoned.
func (c *Core) FileAt(index int) (filerecord.File, bool) {
	if index < 0 || index >= len(c.members) || c.members[index].tombstone {
		return filerecord.File{}, false
	}
	return c.members[index].file, true
}

// FileIndexByName performs the linear scan file_index_by_name specifies.
func (c *Core) FileIndexByName(name string) (int, bool) {
	for i, m := range c.members {
		if m.tombstone {
			continue
		}
		if strings.EqualFold(m.file.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// FileIndex finds a member by identity: same name and hashes that do not
// disagree.
func (c *Core) FileIndex(f filerecord.File) (int, bool) {
	for i, m := range c.members {
		if m.tombstone {
			continue
		}
		if m.file.Name == f.Name && m.file.Hashes.Compare(f.Hashes) != romhash.Mismatch {
			return i, true
		}
	}
	return -1, false
}

// OriginalName returns the name member index carried on disk as of the
// last commit, even if a rename has since been staged for it. Backends use
// this to locate a member's physical bytes before a pending rename takes
// effect.
func (c *Core) OriginalName(index int) string {
	for _, op := range c.staged {
		if op.Kind == opRename && op.Index == index {
			return op.OldName
		}
	}
	if index >= 0 && index < len(c.members) {
		return c.members[index].file.Name
	}
	return ""
}

func (c *Core) nameTaken(name string) bool {
	for i, m := range c.members {
		if m.tombstone {
			continue
		}
		_ = i
		if strings.EqualFold(m.file.Name, name) {
			return true
		}
	}
	return false
}

func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	return
}

// uniqueName implements the spec's unique-name generation: base-NNN[.ext]
// for NNN = 0..999, the first not already live or staged.
func (c *Core) uniqueName(base string) (string, error) {
	stem, ext := splitExt(base)
	for n := 0; n < 1000; n++ {
		candidate := fmt.Sprintf("%s-%03d%s", stem, n, ext)
		if !c.nameTaken(candidate) {
			return candidate, nil
		}
	}
	return "", &ckerr.NameCollisionError{Archive: c.path, Name: base}
}

func (c *Core) appendPending(f filerecord.File) int {
	c.members = append(c.members, member{file: f})
	return len(c.members) - 1
}

// AddEmpty stages a zero-size member named name.
func (c *Core) AddEmpty(name string) (int, error) {
	if c.flags.Has(FlagReadOnly) {
		return -1, &ckerr.ReadOnlyError{Archive: c.path, Op: "file_add_empty"}
	}
	if c.nameTaken(name) {
		return -1, fmt.Errorf("archive: %s: member %q already exists", c.path, name)
	}
	var h romhash.Hashes
	h.SetSize(0)
	h.SetCRC32(0)
	idx := c.appendPending(filerecord.File{Name: name, Hashes: h, Where: filerecord.WhereAdded})
	c.staged = append(c.staged, StagedOp{Kind: opAddEmpty, Index: idx, Name: name})
	return idx, nil
}

// Copy stages a whole-member copy from src's srcIndex into this archive
// under dstName.
func (c *Core) Copy(src Handle, srcIndex int, dstName string) (int, error) {
	if c.flags.Has(FlagReadOnly) {
		return -1, &ckerr.ReadOnlyError{Archive: c.path, Op: "file_copy"}
	}
	if c.nameTaken(dstName) {
		return -1, fmt.Errorf("archive: %s: member %q already exists", c.path, dstName)
	}
	f, ok := src.FileAt(srcIndex)
	if !ok {
		return -1, fmt.Errorf("archive: %s: source index %d out of range", src.Path(), srcIndex)
	}
	f.Name = dstName
	f.Where = filerecord.WhereAdded
	idx := c.appendPending(f)
	c.staged = append(c.staged, StagedOp{Kind: opCopy, Index: idx, Name: dstName, SrcArchive: src, SrcIndex: srcIndex})
	return idx, nil
}

// CopyPart stages an extracted-subrange copy. hasLength false means "to
// end of source", matching file_copy_part's "length absent" case.
func (c *Core) CopyPart(src Handle, srcIndex int, dstName string, offset, length int64, hasLength bool, expected filerecord.File) (int, error) {
	if c.flags.Has(FlagReadOnly) {
		return -1, &ckerr.ReadOnlyError{Archive: c.path, Op: "file_copy_part"}
	}
	if c.nameTaken(dstName) {
		return -1, fmt.Errorf("archive: %s: member %q already exists", c.path, dstName)
	}
	f := expected
	f.Name = dstName
	f.Where = filerecord.WhereAdded
	idx := c.appendPending(f)
	c.staged = append(c.staged, StagedOp{
		Kind: opCopyPart, Index: idx, Name: dstName,
		SrcArchive: src, SrcIndex: srcIndex, Offset: offset, Length: length, HasLength: hasLength,
	})
	return idx, nil
}

// Delete tombstones a live member; it vanishes from Files() and from disk
// on commit.
func (c *Core) Delete(index int) error {
	if c.flags.Has(FlagReadOnly) {
		return &ckerr.ReadOnlyError{Archive: c.path, Op: "file_delete"}
	}
	if _, ok := c.FileAt(index); !ok {
		return &ckerr.StateError{Archive: c.path, Op: "file_delete"}
	}
	c.members[index].tombstone = true
	c.staged = append(c.staged, StagedOp{Kind: opDelete, Index: index})
	return nil
}

// Rename stages a rename of a live member. newName must not already be
// taken by another live or pending member.
func (c *Core) Rename(index int, newName string) error {
	if c.flags.Has(FlagReadOnly) {
		return &ckerr.ReadOnlyError{Archive: c.path, Op: "file_rename"}
	}
	f, ok := c.FileAt(index)
	if !ok {
		return &ckerr.StateError{Archive: c.path, Op: "file_rename"}
	}
	if c.nameTaken(newName) {
		return fmt.Errorf("archive: %s: member %q already exists", c.path, newName)
	}
	old := f.Name
	c.members[index].file.Name = newName
	c.staged = append(c.staged, StagedOp{Kind: opRename, Index: index, OldName: old, Name: newName})
	return nil
}

// RenameToUnique generates a unique name via uniqueName and stages the
// rename, returning the chosen name.
func (c *Core) RenameToUnique(index int) (string, error) {
	f, ok := c.FileAt(index)
	if !ok {
		return "", &ckerr.StateError{Archive: c.path, Op: "file_rename_to_unique"}
	}
	name, err := c.uniqueName(f.Name)
	if err != nil {
		return "", err
	}
	if err := c.Rename(index, name); err != nil {
		return "", err
	}
	return name, nil
}

// SetComputedHashes installs freshly computed hashes and status for a
// member. Backends call this from their ComputeHashes implementation after
// reading the member's bytes.
func (c *Core) SetComputedHashes(index int, h romhash.Hashes, status filerecord.Status) {
	c.members[index].file.Hashes = h
	c.members[index].file.Status = status
}

func (c *Core) resolvePayload(op StagedOp) ([]byte, error) {
	switch op.Kind {
	case opAddEmpty:
		return nil, nil
	case opCopy:
		return op.SrcArchive.ReadMember(op.SrcIndex)
	case opCopyPart:
		full, err := op.SrcArchive.ReadMember(op.SrcIndex)
		if err != nil {
			return nil, err
		}
		start := op.Offset
		end := int64(len(full))
		if op.HasLength {
			end = start + op.Length
		}
		if start < 0 || end > int64(len(full)) || start > end {
			return nil, fmt.Errorf("archive: %s: copy_part range [%d,%d) out of bounds for %d-byte source", c.path, start, end, len(full))
		}
		return full[start:end], nil
	default:
		return nil, nil
	}
}

// ComposeCommitPayloads resolves the bytes to write for every live member
// at commit time. Pending adds/copies resolve from their staged source;
// members carried over untouched (or only renamed) are read via
// readOriginal, which only the backend knows how to do (on-disk zip lookup
// vs. directory file open).
func (c *Core) ComposeCommitPayloads(readOriginal func(index int) ([]byte, error)) (map[int][]byte, error) {
	pending := make(map[int]StagedOp)
	for _, op := range c.staged {
		switch op.Kind {
		case opAddEmpty, opCopy, opCopyPart:
			pending[op.Index] = op
		}
	}
	payloads := make(map[int][]byte)
	for _, i := range c.LiveIndices() {
		if op, ok := pending[i]; ok {
			data, err := c.resolvePayload(op)
			if err != nil {
				return nil, err
			}
			payloads[i] = data
			continue
		}
		data, err := readOriginal(i)
		if err != nil {
			return nil, err
		}
		payloads[i] = data
	}
	return payloads, nil
}

// FinalizeCommit drops tombstoned members, resets the baseline to the
// current live set, and clears the staged-operation log. Backends call
// this after a successful physical commit.
func (c *Core) FinalizeCommit() {
	live := c.members[:0]
	for _, m := range c.members {
		if !m.tombstone {
			live = append(live, m)
		}
	}
	c.members = live
	c.baseline = len(c.members)
	c.staged = nil
}

// DiscardStaged undoes every staged operation (renames and deletes on
// pre-existing members) and drops every pending add/copy, restoring the
// archive to its state as of the last commit.
func (c *Core) DiscardStaged() {
	for i := len(c.staged) - 1; i >= 0; i-- {
		op := c.staged[i]
		switch op.Kind {
		case opRename:
			c.members[op.Index].file.Name = op.OldName
		case opDelete:
			c.members[op.Index].tombstone = false
		}
	}
	c.members = c.members[:c.baseline]
	c.staged = nil
}

// PendingIndices returns the member-slice indices carrying a pending
// add/copy/copy-part operation: their bytes do not yet exist on disk under
// their current name.
func (c *Core) PendingIndices() map[int]bool {
	out := make(map[int]bool)
	for _, op := range c.staged {
		switch op.Kind {
		case opAddEmpty, opCopy, opCopyPart:
			out[op.Index] = true
		}
	}
	return out
}

// TombstonedOriginalNames returns the on-disk names of every member staged
// for deletion, as of the last commit.
func (c *Core) TombstonedOriginalNames() []string {
	var out []string
	for i, m := range c.members {
		if m.tombstone {
			out = append(out, c.OriginalName(i))
		}
	}
	return out
}

// Empty reports whether the archive currently has no live members, the
// condition under which commit removes its on-disk representation (unless
// FlagKeepEmpty is set).
func (c *Core) Empty() bool {
	return len(c.LiveIndices()) == 0
}
