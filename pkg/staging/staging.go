// Package staging implements the two auxiliary archive areas of spec.md
// §4.12: garbage/, a per-source-archive sibling holding unknown or
// superseded files the user elected to keep, and needed/, a single
// well-known pool holding files that may satisfy some not-yet-processed
// game. Both are built on pkg/archive so they share its staged-commit
// discipline; this package only adds the naming and lazy-open rules
// specific to these two roles.
package staging

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/archive/dirback"
	"github.com/nih-at/ckmame-sub001/pkg/archive/zipback"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Opener opens a backend-appropriate handle for path, mirroring whichever
// of zipback.Open/dirback.Open the engine's roms_unzipped option selects.
type Opener func(path string, location archive.Location, flags archive.Flag) (archive.Handle, error)

// ForKind returns the Opener matching k (archive.KindZip or
// archive.KindDirectory), matching the "roms_unzipped" config option of
// spec.md §6.
func ForKind(k archive.Kind) Opener {
	if k == archive.KindDirectory {
		return func(path string, location archive.Location, flags archive.Flag) (archive.Handle, error) {
			return dirback.Open(path, location, flags)
		}
	}
	return func(path string, location archive.Location, flags archive.Flag) (archive.Handle, error) {
		return zipback.Open(path, location, flags)
	}
}

func archiveFileName(base string, kind archive.Kind) string {
	if kind == archive.KindDirectory {
		return base
	}
	return base + ".zip"
}

// Pools owns the garbage and needed staging areas for one run.
type Pools struct {
	mu sync.Mutex

	open   Opener
	kind   archive.Kind
	needed string // needed/ pool root

	garbage      map[string]archive.Handle // keyed by source archive path
	neededHandle archive.Handle
}

// NewPools constructs a Pools rooted at neededRoot (the well-known
// needed/ pool directory) using the given backend kind for both garbage
// and needed archives.
func NewPools(neededRoot string, kind archive.Kind) *Pools {
	return &Pools{
		open:    ForKind(kind),
		kind:    kind,
		needed:  neededRoot,
		garbage: make(map[string]archive.Handle),
	}
}

// GarbageFor returns the garbage archive sibling to sourceArchivePath,
// opening it (with FlagCreate) the first time it is requested for that
// source within this run — "lazily created on first add" (spec §4.12),
// named directly from the source's own basename rather than a fresh id
// (SPEC_FULL.md supplemented feature #1).
func (p *Pools) GarbageFor(sourceArchivePath string) (archive.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir := filepath.Dir(sourceArchivePath)
	base := filepath.Base(sourceArchivePath)
	base = trimArchiveExt(base, p.kind)

	if h, ok := p.garbage[sourceArchivePath]; ok {
		return h, nil
	}

	garbageDir := filepath.Join(dir, "garbage")
	path := filepath.Join(garbageDir, archiveFileName(base, p.kind))
	h, err := p.open(path, archive.LocationGarbage, archive.FlagCreate)
	if err != nil {
		return nil, err
	}
	p.garbage[sourceArchivePath] = h
	return h, nil
}

func trimArchiveExt(base string, kind archive.Kind) string {
	if kind == archive.KindDirectory {
		return base
	}
	ext := filepath.Ext(base)
	if ext == ".zip" {
		return base[:len(base)-len(ext)]
	}
	return base
}

// OpenGarbageArchives returns every garbage archive opened so far this
// run, for the fixer's commit-ordering pass (garbage commits before its
// source, spec §4.9 Step D).
func (p *Pools) OpenGarbageArchives() []archive.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]archive.Handle, 0, len(p.garbage))
	for _, h := range p.garbage {
		out = append(out, h)
	}
	return out
}

// neededName derives the on-disk name for a file saved into needed/: a
// hash-prefix plus the original base name, per SPEC_FULL.md supplemented
// feature #2 (grounded on original_source's garbage.c).
func neededName(f filerecord.File) string {
	prefix := "00000000"
	if crc, ok := f.Hashes.CRC32(); ok {
		prefix = fmt.Sprintf("%08x", crc)
	} else if d := f.Hashes.Digest(romhash.SHA1); d != nil {
		prefix = hex.EncodeToString(d[:4])
	}
	return prefix + "-" + f.Name
}

// Needed opens (creating if absent) the single well-known needed/ pool
// archive handle with the run's backend kind: a directory of loose files
// when unzipped, otherwise one ZIP container at the pool path. Its members
// are the content-addressed saved files.
func (p *Pools) Needed() (archive.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.neededHandle != nil {
		return p.neededHandle, nil
	}
	h, err := p.open(p.needed, archive.LocationNeeded, archive.FlagCreate|archive.FlagKeepEmpty)
	if err != nil {
		return nil, err
	}
	p.neededHandle = h
	return h, nil
}

// SaveToNeeded stages a cross-archive copy of src[srcIndex] into the
// needed pool under a content-hash-prefixed unique name, falling back to
// the archive's own RenameToUnique scheme on a name collision (spec
// §4.12, SPEC_FULL.md supplement #2).
func (p *Pools) SaveToNeeded(src archive.Handle, srcIndex int, f filerecord.File) (int, error) {
	needed, err := p.Needed()
	if err != nil {
		return -1, err
	}
	name := neededName(f)
	if _, taken := needed.FileIndexByName(name); taken {
		idx, err := needed.Copy(src, srcIndex, name+".tmp")
		if err != nil {
			return -1, err
		}
		if _, err := needed.RenameToUnique(idx); err != nil {
			return -1, err
		}
		return idx, nil
	}
	return needed.Copy(src, srcIndex, name)
}

// Commit commits the needed/ pool archive if this run ever staged anything
// into it. Callers must invoke this before executing the deferred delete
// lists: sweepMembers queues a saved file's original source for deletion
// (deletelist.KindNeeded) as soon as SaveToNeeded succeeds, so the needed
// pool's copy must be durable on disk before that source is actually
// removed, or a crash between the two would lose the file's only copy.
func (p *Pools) Commit() error {
	p.mu.Lock()
	h := p.neededHandle
	p.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Commit()
}
