// Package matcher implements the matcher component of spec.md §4.8: for a
// game's expected files, it ranks candidate sources across the game's own
// archive, its parent's, its grandparent's, and the global file index, then
// resolves "marriages" so that no on-disk source is claimed by more than
// one expected file.
//
// The marriage/displacement resolution here is grounded on the teacher's
// pkg/synchronization/core/reconcile.go three-way disagreement resolution:
// both algorithms repeatedly re-examine a worklist as claims shift, rather
// than committing to a first-found answer. Per spec.md §9 Design Notes,
// candidates are held in a small slice per expected file plus an explicit
// displacement queue instead of the source's linked list.
package matcher

import (
	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/detector"
	"github.com/nih-at/ckmame-sub001/pkg/fileindex"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Quality is the matcher's confidence ranking for a candidate source,
// ascending per spec.md §3: Missing < Unknown < Old < NoHash < Copied <
// InZip < NameErr < Long < OK.
type Quality int

const (
	QualityMissing Quality = iota
	QualityUnknown
	QualityOld
	QualityNoHash
	QualityCopied
	QualityInZip
	QualityNameErr
	QualityLong
	QualityOK
)

// String implements fmt.Stringer.
func (q Quality) String() string {
	switch q {
	case QualityMissing:
		return "missing"
	case QualityUnknown:
		return "unknown"
	case QualityOld:
		return "old"
	case QualityNoHash:
		return "nohash"
	case QualityCopied:
		return "copied"
	case QualityInZip:
		return "inzip"
	case QualityNameErr:
		return "nameerr"
	case QualityLong:
		return "long"
	case QualityOK:
		return "ok"
	default:
		return "?"
	}
}

// Match is the matcher's result for a single expected file.
type Match struct {
	Quality   Quality
	Source    archive.Handle
	SourcePath string // set instead of Source for global-index hits the caller must resolve by path
	SourceIdx int
	Where     archive.Location
	Offset    int64
	HasOffset bool
	LongFixed bool // true iff a LONG quality found a matching subrange
	MergeFrom string
}

// candidate is one ranked source for an expected file; each expected file's
// slice of them is its pool during marriage resolution.
type candidate struct {
	Match
	expected int // index into the game's expected-file slice this candidate serves
}

// claim records which expected file currently holds a given (archive,
// member) source.
type claim struct {
	expected int
	quality  Quality
}

// Archives bundles the up-to-three candidate archive handles a game may
// draw from. Any may be nil if that archive does not exist on disk.
type Archives struct {
	Self        archive.Handle
	Parent      archive.Handle
	Grandparent archive.Handle
}

func (a Archives) byLocation(loc archive.Location) archive.Handle {
	switch loc {
	case archive.LocationSelf:
		return a.Self
	case archive.LocationParent:
		return a.Parent
	case archive.LocationGrandparent:
		return a.Grandparent
	default:
		return nil
	}
}

func (a Archives) each(fn func(loc archive.Location, h archive.Handle)) {
	if a.Self != nil {
		fn(archive.LocationSelf, a.Self)
	}
	if a.Parent != nil {
		fn(archive.LocationParent, a.Parent)
	}
	if a.Grandparent != nil {
		fn(archive.LocationGrandparent, a.Grandparent)
	}
}

// Result is the per-game matcher output.
type Result struct {
	// Matches is keyed by index into the input expected-file slice.
	Matches []Match
	// Warnings holds non-fatal diagnostics (e.g. an unresolvable merge
	// name), per spec.md §9 open question #1: logged, not promoted to an
	// error.
	Warnings []string
}

// Options configures a Match run.
type Options struct {
	// Det is the run's header detector. Match passes it to the LONG
	// subrange search, which does not apply it: candidate hashes and
	// subrange windows are both computed over raw member bytes.
	Det *detector.Detector
	// Index is the global file index consulted for COPIED candidates.
	Index *fileindex.Index
	// ResolveArchive looks up an open archive.Handle by path, for turning
	// a global-index hit (which only knows a path string) into a handle
	// the planner can stage a copy from. A nil result (archive not
	// currently open) leaves the candidate keyed by SourcePath only; the
	// planner opens it read-only when it stages the copy.
	ResolveArchive func(path string) archive.Handle
	// CaseSensitive controls filerecord.File.CompareName's behavior for
	// the backend in use.
	CaseSensitive bool
}

// ensureHashes fills in any hash types h is missing that expected carries,
// by asking the owning archive to compute them. It reports false when the
// read/hash fails; Match then ranks a name-matching candidate NoHash rather
// than aborting the whole match (spec §7: per-member I/O errors downgrade,
// they don't abort).
func ensureHashes(h archive.Handle, idx int, want romhash.Type) (filerecord.File, bool) {
	if err := h.ComputeHashes(idx, want); err != nil {
		f, _ := h.FileAt(idx)
		return f, false
	}
	f, ok := h.FileAt(idx)
	return f, ok
}

// candidateQuality implements the spec.md §4.8 quality table for a single
// (expected, member) pair found by scanning a candidate archive.
func candidateQuality(expected, member filerecord.File, caseSensitive bool) (quality Quality, longPending bool) {
	namesMatch := expected.CompareName(member, caseSensitive) || expected.EffectiveName() == member.Name

	if expected.Status == filerecord.StatusNodump {
		if namesMatch {
			return QualityOK, false
		}
		return QualityUnknown, false
	}

	if expected.IsZeroSize() && namesMatch {
		return QualityOK, false
	}

	sizeHashMatch := expected.CompareSizeHashes(member)
	expSize, expSizeKnown := expected.Hashes.Size()
	memSize, memSizeKnown := member.Hashes.Size()

	switch {
	case namesMatch && sizeHashMatch:
		return QualityOK, false
	case namesMatch && expected.Hashes.Compare(member.Hashes) == romhash.Mismatch && expSizeKnown && memSizeKnown && expSize == memSize:
		// names match, sizes match, hashes disagree: CRCERR, "effectively
		// UNKNOWN" per spec.md §4.8.
		return QualityUnknown, false
	case namesMatch && expSizeKnown && memSizeKnown && memSize > expSize:
		// names match, member larger: a LONG candidate, pending the
		// subrange search the caller performs separately.
		return QualityLong, true
	case namesMatch && expSizeKnown && memSizeKnown && memSize < expSize:
		return QualityUnknown, false // SHORT, "effectively UNKNOWN"
	case namesMatch:
		return QualityNoHash, false
	case !namesMatch && sizeHashMatch && expected.Hashes.Compare(member.Hashes) == romhash.Match:
		return QualityNameErr, false
	default:
		return QualityUnknown, false
	}
}

// findSubrange scans h's member for a contiguous window of expected.Size
// bytes whose hash matches expected, used to upgrade a LONG candidate from
// unfixable to a concrete byte offset (spec.md §4.8: "retried as subrange
// by scanning byte-offsets").
func findSubrange(h archive.Handle, memberIdx int, expected filerecord.File, det *detector.Detector) (int64, bool, error) {
	size, ok := expected.Hashes.Size()
	if !ok || size <= 0 {
		return 0, false, nil
	}
	data, err := h.ReadMember(memberIdx)
	if err != nil {
		return 0, false, err
	}
	want := expected.Hashes.Types()
	for offset := int64(0); offset+size <= int64(len(data)); offset++ {
		window := data[offset : offset+size]
		u := romhash.NewUpdater(want)
		u.Write(window)
		got := u.Finalize()
		if got.Compare(expected.Hashes) == romhash.Match {
			return offset, true, nil
		}
	}
	return 0, false, nil
}

// Match runs the matcher for one game's expected-file list against its
// (up to three) candidate archives plus the global index, and returns a
// Result with marriages resolved.
func Match(expectedFiles []filerecord.File, archives Archives, opts Options) Result {
	var result Result
	pool := make([][]candidate, len(expectedFiles))

	locationRank := func(loc archive.Location) int {
		switch loc {
		case archive.LocationSelf:
			return 0
		case archive.LocationParent:
			return 1
		case archive.LocationGrandparent:
			return 2
		default:
			return 3
		}
	}

	for ei, expected := range expectedFiles {
		if expected.Kind == filerecord.KindDisk {
			continue // disks are swept separately (spec.md §4.9 Step E)
		}

		var candidates []candidate

		archives.each(func(loc archive.Location, h archive.Handle) {
			for _, mi := range h.LiveIndices() {
				member, _ := h.FileAt(mi)
				want := expected.Hashes.Types()
				hashFailed := false
				if want != 0 {
					if filled, ok := ensureHashes(h, mi, want); ok {
						member = filled
					} else {
						hashFailed = true
					}
				}

				q, longPending := candidateQuality(expected, member, opts.CaseSensitive)
				if hashFailed && expected.CompareName(member, opts.CaseSensitive) {
					q, longPending = QualityNoHash, false
				}
				if q == QualityMissing {
					continue
				}

				m := Match{Quality: q, Source: h, SourceIdx: mi, Where: loc}

				if longPending {
					offset, found, err := findSubrange(h, mi, expected, opts.Det)
					if err == nil && found {
						m.Offset = offset
						m.HasOffset = true
						m.LongFixed = true
					}
					// Unfound subrange stays QualityLong, unfixable: the
					// planner reports it and takes no action.
				}

				if q == QualityUnknown && member.Hashes.Compare(expected.Hashes) == romhash.NoCommonTypes &&
					expected.CompareName(member, opts.CaseSensitive) {
					// Hash comparison was inconclusive but the name matches
					// and we could not read the member: treat as NOHASH
					// rather than UNKNOWN, matching "names match, no
					// hashes computable".
					q = QualityNoHash
					m.Quality = q
				}

				if member.Where == filerecord.WhereOld && q != QualityOK {
					q = QualityOld
					m.Quality = q
				}

				candidates = append(candidates, candidate{Match: m, expected: ei})
			}
		})

		if opts.Index != nil {
			for _, hit := range opts.Index.LookupByHashes(expected.Hashes) {
				m := Match{Quality: QualityCopied, SourceIdx: hit.Member, Where: archive.LocationExtra, SourcePath: hit.Archive}
				if opts.ResolveArchive != nil {
					m.Source = opts.ResolveArchive(hit.Archive)
				}
				candidates = append(candidates, candidate{Match: m, expected: ei})
			}
		}

		if expected.Merge != "" {
			parentHas := false
			if archives.Parent != nil {
				if _, ok := archives.Parent.FileIndexByName(expected.Merge); ok {
					parentHas = true
				}
			}
			if !parentHas && expected.Where == filerecord.WhereCloneOf {
				result.Warnings = append(result.Warnings, "merge name "+expected.Merge+" for "+expected.Name+" not found in parent; treating as unmerged")
			}
		}

		// Rank descending: best candidate first. Ties broken by archive
		// proximity (self before parent before grandparent before pools).
		for i := 1; i < len(candidates); i++ {
			j := i
			for j > 0 && less(candidates[j-1], candidates[j], locationRank) {
				candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
				j--
			}
		}

		pool[ei] = candidates
	}

	result.Matches = resolveMarriages(expectedFiles, pool)
	return result
}

func less(a, b candidate, locationRank func(archive.Location) int) bool {
	if a.Quality != b.Quality {
		return a.Quality < b.Quality
	}
	return locationRank(a.Where) > locationRank(b.Where)
}

// resolveMarriages implements the marriage/displacement pass: each
// expected file claims its best still-available candidate; if a stronger
// claimant later wants the same source, the weaker claimant is displaced
// and re-queued to pick its next-best option.
func resolveMarriages(expectedFiles []filerecord.File, pool [][]candidate) []Match {
	matches := make([]Match, len(expectedFiles))
	cursor := make([]int, len(expectedFiles))
	for i := range matches {
		matches[i] = Match{Quality: QualityMissing}
	}

	claims := make(map[sourceKey]claim)

	queue := make([]int, len(expectedFiles))
	for i := range queue {
		queue[i] = i
	}

	for len(queue) > 0 {
		ei := queue[0]
		queue = queue[1:]

		candidates := pool[ei]
		for cursor[ei] < len(candidates) {
			c := candidates[cursor[ei]]
			key := sourceKeyFor(c.Match)
			existing, taken := claims[key]
			if !taken {
				claims[key] = claim{expected: ei, quality: c.Quality}
				matches[ei] = c.Match
				break
			}
			if c.Quality > existing.quality {
				// Displace the weaker claimant and re-queue it.
				claims[key] = claim{expected: ei, quality: c.Quality}
				matches[ei] = c.Match
				displaced := existing.expected
				cursor[displaced]++
				matches[displaced] = Match{Quality: QualityMissing}
				queue = append(queue, displaced)
				break
			}
			cursor[ei]++
		}
	}

	return matches
}

type sourceKey struct {
	path  string
	index int
}

func sourceKeyFor(m Match) sourceKey {
	path := m.SourcePath
	if m.Source != nil {
		path = m.Source.Path()
	}
	return sourceKey{path: path, index: m.SourceIdx}
}
