// Package deletelist implements the three deferred-deletion lists of
// spec.md §4.11: extra, needed, and superfluous. Entries accumulate across
// an entire traversal and are executed only once, after every game has
// been fixed, so that a late discovery (e.g. a file moved to needed/ by a
// later game) cannot be undone by an earlier game's premature cleanup.
//
// Mark/RollbackToMark gives the planner per-game atomicity: before working
// on a game it marks each list's current length, and if that game's
// archive commit fails, rolls every list back to its mark so the failed
// game leaves no residue in the lists a later, successful game might also
// have contributed to.
package deletelist

import "sort"

// Kind names one of the three lists.
type Kind int

const (
	KindExtra Kind = iota
	KindNeeded
	KindSuperfluous
)

func (k Kind) String() string {
	switch k {
	case KindExtra:
		return "extra"
	case KindNeeded:
		return "needed"
	case KindSuperfluous:
		return "superfluous"
	default:
		return "?"
	}
}

// Entry identifies one member staged for eventual deletion, by name rather
// than by the member-slice index it had when pushed: Execute runs after the
// owning archive may already have gone through an intervening Commit, which
// compacts and renumbers that slice (archive.Core.FinalizeCommit), so a
// captured numeric index would no longer address the same file by then.
type Entry struct {
	Archive string
	Name    string
}

// Lists holds the three deferred-deletion lists for one traversal.
type Lists struct {
	entries [3][]Entry
}

// New creates an empty set of lists.
func New() *Lists {
	return &Lists{}
}

// Push appends an entry to the named list.
func (l *Lists) Push(k Kind, e Entry) {
	l.entries[k] = append(l.entries[k], e)
}

// Mark snapshots the current length of every list, for a later
// RollbackToMark.
type Mark [3]int

// Mark returns the current lengths of all three lists.
func (l *Lists) Mark() Mark {
	var m Mark
	for i := range l.entries {
		m[i] = len(l.entries[i])
	}
	return m
}

// RollbackToMark truncates every list back to the lengths recorded in m,
// discarding anything pushed since — used when a game's archive commit
// fails and its pending deletions must not survive (spec §4.11, §7).
func (l *Lists) RollbackToMark(m Mark) {
	for i := range l.entries {
		if m[i] < len(l.entries[i]) {
			l.entries[i] = l.entries[i][:m[i]]
		}
	}
}

// Batch is every pending entry for a single archive, across whichever
// lists named it, as handed to Execute's callback.
type Batch struct {
	Archive string
	Entries []BatchEntry
}

// BatchEntry is one member to delete, tagged with which list it came from
// (a diagnostic wants to know whether it was reported "extra", "needed",
// or "superfluous").
type BatchEntry struct {
	Kind Kind
	Name string
}

// Execute groups every list's entries by archive name (so each archive is
// opened once), sorted lexicographically as spec §4.11 specifies, and
// invokes apply once per archive with its batch of pending deletions.
// The walker calls Execute once, after every game has been visited; entries
// pushed by a game whose fix failed have already been rolled back to its mark.
func (l *Lists) Execute(apply func(Batch) error) error {
	byArchive := make(map[string][]BatchEntry)
	for k, entries := range l.entries {
		for _, e := range entries {
			byArchive[e.Archive] = append(byArchive[e.Archive], BatchEntry{Kind: Kind(k), Name: e.Name})
		}
	}

	names := make([]string, 0, len(byArchive))
	for name := range byArchive {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := apply(Batch{Archive: name, Entries: byArchive[name]}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of pending entries in the named list, mostly for
// tests and diagnostics.
func (l *Lists) Len(k Kind) int {
	return len(l.entries[k])
}
