// Package catalog defines the reference catalog collaborator: the
// interface the matcher and traversal consult for a game's expected file
// list and parent linkage, and for a hash-indexed cross-reference back to
// "what game(s) expect a file with these hashes". Parsing a DAT into a
// Catalog is out of scope here (see spec's Non-goals); this package is the
// seam a concrete DAT reader plugs into, plus an in-memory reference
// implementation other packages' tests build fixtures with.
package catalog

import (
	"encoding/hex"
	"sync"

	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Game is one catalog entry: its expected files and its clone-parent
// linkage. Grandparent is not stored directly — it is the parent's own
// CloneOf, walked one hop further by the traversal.
type Game struct {
	Name    string
	CloneOf string
	Files   []filerecord.File
}

// FileRef identifies one expected file within a catalog game by position.
type FileRef struct {
	Game      string
	FileIndex int
}

// Catalog is built once per output and answers the matcher/traversal's
// lookups against it. A DAT-format reader (XML Logiqx, ClrMamePro, etc.)
// is expected to populate a Catalog once at startup via WriteGame.
type Catalog interface {
	ReadGame(name string) (Game, bool)
	ReadFileByHash(t romhash.Type, digest []byte) []FileRef
	WriteGame(g Game)
	UpdateGameParent(name, parent string)
	UpdateFileLocation(game string, fileIndex int, where filerecord.Where)
}

// Memory is an in-memory Catalog implementation. It is the reference
// implementation tests build fixtures with; a production front end would
// instead populate a Catalog by parsing a DAT file.
type Memory struct {
	mu     sync.Mutex
	games  map[string]Game
	byHash map[romhash.Type]map[string][]FileRef
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		games:  make(map[string]Game),
		byHash: make(map[romhash.Type]map[string][]FileRef),
	}
}

// ReadGame returns the named game and whether it is known.
func (m *Memory) ReadGame(name string) (Game, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[name]
	return g, ok
}

// ReadFileByHash returns every (game, file index) whose expected file
// carries the given digest for hash type t.
func (m *Memory) ReadFileByHash(t romhash.Type, digest []byte) []FileRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType, ok := m.byHash[t]
	if !ok {
		return nil
	}
	refs := byType[hex.EncodeToString(digest)]
	out := make([]FileRef, len(refs))
	copy(out, refs)
	return out
}

// WriteGame installs or replaces a game and rebuilds its hash-index
// entries.
func (m *Memory) WriteGame(g Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeHashEntriesLocked(g.Name)
	m.games[g.Name] = g
	for i, f := range g.Files {
		for _, t := range []romhash.Type{romhash.CRC32, romhash.MD5, romhash.SHA1, romhash.SHA256} {
			d := f.Hashes.Digest(t)
			if d == nil {
				continue
			}
			byType, ok := m.byHash[t]
			if !ok {
				byType = make(map[string][]FileRef)
				m.byHash[t] = byType
			}
			key := hex.EncodeToString(d)
			byType[key] = append(byType[key], FileRef{Game: g.Name, FileIndex: i})
		}
	}
}

func (m *Memory) removeHashEntriesLocked(name string) {
	for _, byType := range m.byHash {
		for key, refs := range byType {
			kept := refs[:0]
			for _, r := range refs {
				if r.Game != name {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				delete(byType, key)
			} else {
				byType[key] = kept
			}
		}
	}
}

// UpdateGameParent rewrites a game's clone-parent linkage. Per the
// catalog-inconsistency handling rule, a parent name that does not resolve
// to a known game is still recorded here: it is the traversal's job to
// notice, log, and treat the link as absent.
func (m *Memory) UpdateGameParent(name, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[name]
	if !ok {
		return
	}
	g.CloneOf = parent
	m.games[name] = g
}

// UpdateFileLocation records a new placement for one of a game's expected
// files, e.g. after the fixer moves its source into needed/.
func (m *Memory) UpdateFileLocation(game string, fileIndex int, where filerecord.Where) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[game]
	if !ok || fileIndex < 0 || fileIndex >= len(g.Files) {
		return
	}
	g.Files[fileIndex].Where = where
}
