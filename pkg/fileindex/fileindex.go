// Package fileindex implements the global, transient, content-addressed
// index over every (archive, member) whose location is external to the
// games that need it — the needed/, superfluous/, and extra pools. The
// matcher consults it to satisfy a missing expected file from anywhere in
// those pools in O(candidates) rather than rescanning every archive.
package fileindex

import (
	"encoding/binary"
	"sync"

	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

type key struct {
	archive string
	member  int
}

type entry struct {
	key  key
	file filerecord.File
}

// Candidate is one index hit.
type Candidate struct {
	Archive string
	Member  int
	File    filerecord.File
}

// Index is the in-memory index. It is safe for concurrent use; Insert and
// Delete are O(1), lookups are O(candidates sharing the queried digest).
type Index struct {
	mu       sync.Mutex
	entries  map[key]*entry
	byCRC32  map[uint32][]*entry
	byMD5    map[[16]byte][]*entry
	bySHA1   map[[20]byte][]*entry
	bySHA256 map[[32]byte][]*entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		entries:  make(map[key]*entry),
		byCRC32:  make(map[uint32][]*entry),
		byMD5:    make(map[[16]byte][]*entry),
		bySHA1:   make(map[[20]byte][]*entry),
		bySHA256: make(map[[32]byte][]*entry),
	}
}

// Insert adds (archive, member) to the index under every hash type its
// file carries. Re-inserting the same (archive, member) replaces its prior
// entry.
func (idx *Index) Insert(archive string, member int, f filerecord.File) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.deleteLocked(archive, member)

	k := key{archive, member}
	e := &entry{key: k, file: f}
	idx.entries[k] = e

	if crc, ok := f.Hashes.CRC32(); ok {
		idx.byCRC32[crc] = append(idx.byCRC32[crc], e)
	}
	if d := f.Hashes.Digest(romhash.MD5); d != nil {
		var a [16]byte
		copy(a[:], d)
		idx.byMD5[a] = append(idx.byMD5[a], e)
	}
	if d := f.Hashes.Digest(romhash.SHA1); d != nil {
		var a [20]byte
		copy(a[:], d)
		idx.bySHA1[a] = append(idx.bySHA1[a], e)
	}
	if d := f.Hashes.Digest(romhash.SHA256); d != nil {
		var a [32]byte
		copy(a[:], d)
		idx.bySHA256[a] = append(idx.bySHA256[a], e)
	}
}

// Delete removes (archive, member) from the index, matching the rule that
// a successful archive commit removes deleted members from the index.
func (idx *Index) Delete(archive string, member int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(archive, member)
}

func (idx *Index) deleteLocked(archive string, member int) {
	k := key{archive, member}
	e, ok := idx.entries[k]
	if !ok {
		return
	}
	delete(idx.entries, k)

	if crc, ok := e.file.Hashes.CRC32(); ok {
		idx.byCRC32[crc] = removeEntry(idx.byCRC32[crc], e)
	}
	if d := e.file.Hashes.Digest(romhash.MD5); d != nil {
		var a [16]byte
		copy(a[:], d)
		idx.byMD5[a] = removeEntry(idx.byMD5[a], e)
	}
	if d := e.file.Hashes.Digest(romhash.SHA1); d != nil {
		var a [20]byte
		copy(a[:], d)
		idx.bySHA1[a] = removeEntry(idx.bySHA1[a], e)
	}
	if d := e.file.Hashes.Digest(romhash.SHA256); d != nil {
		var a [32]byte
		copy(a[:], d)
		idx.bySHA256[a] = removeEntry(idx.bySHA256[a], e)
	}
}

func removeEntry(list []*entry, target *entry) []*entry {
	out := list[:0]
	for _, e := range list {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// LookupByHashes returns every candidate whose stored hashes match h on at
// least the intersection of present types, and whose size agrees with h's
// or is unknown on either side.
func (idx *Index) LookupByHashes(h romhash.Hashes) []Candidate {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	seen := make(map[key]bool)
	var out []Candidate
	consider := func(list []*entry) {
		for _, e := range list {
			if seen[e.key] {
				continue
			}
			if e.file.Hashes.Compare(h) == romhash.Mismatch {
				continue
			}
			if sizeA, okA := e.file.Hashes.Size(); okA {
				if sizeB, okB := h.Size(); okB && sizeA != sizeB {
					continue
				}
			}
			seen[e.key] = true
			out = append(out, Candidate{Archive: e.key.archive, Member: e.key.member, File: e.file})
		}
	}

	if crc, ok := h.CRC32(); ok {
		consider(idx.byCRC32[crc])
	}
	if d := h.Digest(romhash.MD5); d != nil {
		var a [16]byte
		copy(a[:], d)
		consider(idx.byMD5[a])
	}
	if d := h.Digest(romhash.SHA1); d != nil {
		var a [20]byte
		copy(a[:], d)
		consider(idx.bySHA1[a])
	}
	if d := h.Digest(romhash.SHA256); d != nil {
		var a [32]byte
		copy(a[:], d)
		consider(idx.bySHA256[a])
	}
	return out
}

// LookupByType returns every candidate sharing a single hash type's
// digest — a superset the caller is expected to refine (e.g. with a full
// LookupByHashes-style comparison) before trusting a result.
func (idx *Index) LookupByType(t romhash.Type, digest []byte) []Candidate {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var list []*entry
	switch t {
	case romhash.CRC32:
		if len(digest) == 4 {
			list = idx.byCRC32[binary.BigEndian.Uint32(digest)]
		}
	case romhash.MD5:
		if len(digest) == 16 {
			var a [16]byte
			copy(a[:], digest)
			list = idx.byMD5[a]
		}
	case romhash.SHA1:
		if len(digest) == 20 {
			var a [20]byte
			copy(a[:], digest)
			list = idx.bySHA1[a]
		}
	case romhash.SHA256:
		if len(digest) == 32 {
			var a [32]byte
			copy(a[:], digest)
			list = idx.bySHA256[a]
		}
	}
	out := make([]Candidate, len(list))
	for i, e := range list {
		out[i] = Candidate{Archive: e.key.archive, Member: e.key.member, File: e.file}
	}
	return out
}
