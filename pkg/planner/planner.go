// Package planner implements the planner/fixer of spec.md §4.9: given a
// game's matcher.Result, it stages the sequence of archive mutations that
// bring the game's own archive into the correct state, sweeps its existing
// members for anything no longer needed, and commits atomically with
// rollback on failure.
//
// The step ordering (health check, member sweep, expected-file loop,
// commit, disks) follows original_source/src/fix.c directly; the
// "changes applied in a defined order against a tree, topologically
// sorted so a destination commits before its source" idiom is adapted
// from the teacher's core/apply.go per spec.md §9 Design Notes, which asks
// for an explicit ordered commit sequence rather than call-order reliance.
package planner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/ckerr"
	"github.com/nih-at/ckmame-sub001/pkg/deletelist"
	"github.com/nih-at/ckmame-sub001/pkg/fileindex"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/matcher"
	"github.com/nih-at/ckmame-sub001/pkg/report"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
	"github.com/nih-at/ckmame-sub001/pkg/staging"
)

// Options mirrors the configuration table of spec.md §6 that the planner
// consults.
type Options struct {
	FixDo           bool // apply mutations; false means dry-run (print only)
	MoveUnknown     bool // unknown files go to garbage instead of being deleted
	MoveLong        bool // long files, after substring extraction, preserved in garbage
	DeleteDuplicate bool // delete members already satisfied elsewhere, instead of keeping
	DeleteExtra     bool // not read by Fixer; has no effect on the delete lists
	CompleteOnly    bool // not read by Fixer; fixes are applied to every game, complete or not
	IgnoreUnknown   bool // skip unknown-file handling entirely
	KeepEmpty       bool // not read by Fixer; an emptied archive is kept only if opened with archive.FlagKeepEmpty
}

// RecheckSignal names an expected file, elsewhere in the catalog, whose
// backing content just moved into needed/ — the traversal reprocesses the
// owning game because it may now be satisfiable (spec.md §4.10).
type RecheckSignal struct {
	Game      string
	FileIndex int
}

// Fixer holds the cross-game state a planner run threads through every
// game: the staging pools, the deferred delete lists, the catalog (for
// needed-file lookups), the global index, and the diagnostics writer.
type Fixer struct {
	Opts    Options
	Pools   *staging.Pools
	Deletes *deletelist.Lists
	Catalog catalog.Catalog
	Index   *fileindex.Index
	Report  *report.Writer
	Opener  staging.Opener
}

// New constructs a Fixer.
func New(opts Options, pools *staging.Pools, deletes *deletelist.Lists, cat catalog.Catalog, idx *fileindex.Index, rep *report.Writer, opener staging.Opener) *Fixer {
	return &Fixer{Opts: opts, Pools: pools, Deletes: deletes, Catalog: cat, Index: idx, Report: rep, Opener: opener}
}

// QuarantineAndRecreate implements Step A's broken-archive handling: the
// unusable archive at path is renamed aside to broken/<name>-NNN.<ext>,
// numbered the same way unique-name generation numbers collisions
// (SPEC_FULL.md supplement #3), and a fresh empty archive handle is
// returned in its place.
func (f *Fixer) QuarantineAndRecreate(path string, location archive.Location) (archive.Handle, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	brokenDir := filepath.Join(dir, "broken")
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	dest := ""
	for n := 0; n < 1000; n++ {
		candidate := filepath.Join(brokenDir, fmt.Sprintf("%s-%03d%s", stem, n, ext))
		if !fileExists(candidate) {
			dest = candidate
			break
		}
	}
	if dest == "" {
		return nil, &ckerr.NameCollisionError{Archive: path, Name: base}
	}
	if err := moveAside(path, dest); err != nil {
		return nil, ckerr.NewIO(path, err)
	}
	return f.Opener(path, location, archive.FlagCreate)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func moveAside(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func hashSummary(h romhash.Hashes) string {
	if crc, ok := h.CRC32(); ok {
		return fmt.Sprintf("%08x", crc)
	}
	return "?"
}

// classification is the member-sweep state of spec.md §4.9 Step B.
type classification int

const (
	stateUsed classification = iota
	stateUnknown
	stateDuplicate
	stateSuperfluous
	stateNeeded
)

// classifyMember determines a self-archive member's disposition: used if
// some match claimed it, else looked up against the whole catalog to tell
// apart a duplicate of something this game already has, a file another
// game needs, or something the catalog has never heard of.
func (f *Fixer) classifyMember(gameName string, self archive.Handle, idx int, matches []matcher.Match) classification {
	for _, m := range matches {
		if m.Source == self && m.SourceIdx == idx {
			return stateUsed
		}
	}

	member, ok := self.FileAt(idx)
	if !ok {
		return stateUnknown
	}

	if f.Catalog == nil {
		return stateUnknown
	}

	sawSameGame := false
	sawOtherGame := false
	for _, t := range []romhash.Type{romhash.SHA256, romhash.SHA1, romhash.MD5, romhash.CRC32} {
		d := member.Hashes.Digest(t)
		if d == nil {
			continue
		}
		for _, ref := range f.Catalog.ReadFileByHash(t, d) {
			if ref.Game == gameName {
				sawSameGame = true
			} else {
				sawOtherGame = true
			}
		}
	}

	switch {
	case sawSameGame:
		return stateDuplicate
	case sawOtherGame:
		return stateNeeded
	default:
		return stateUnknown
	}
}

func subject(archivePath, member string) report.Subject {
	return report.Subject{Archive: archivePath, Member: member}
}

// sweepMembers implements Step B: classify and dispose of every existing
// member of the self archive that the expected-file loop did not claim.
func (f *Fixer) sweepMembers(gameName string, self archive.Handle, matches []matcher.Match) ([]RecheckSignal, error) {
	if self == nil {
		return nil, nil
	}
	var recheck []RecheckSignal

	for _, idx := range self.LiveIndices() {
		state := f.classifyMember(gameName, self, idx, matches)
		if state == stateUsed {
			continue
		}
		member, _ := self.FileAt(idx)

		switch state {
		case stateUnknown:
			if f.Opts.IgnoreUnknown {
				continue
			}
			if f.Opts.MoveUnknown {
				garbage, err := f.Pools.GarbageFor(self.Path())
				if err != nil {
					return recheck, err
				}
				if _, err := garbage.Copy(self, idx, member.Name); err != nil {
					return recheck, err
				}
				f.Report.Line(subject(self.Path(), member.Name), report.VerbMoveUnknown(member.Name))
			} else {
				f.Report.Line(subject(self.Path(), member.Name), report.VerbNotUsed())
			}
			f.Deletes.Push(deletelist.KindExtra, deletelist.Entry{Archive: self.Path(), Name: member.Name})

		case stateDuplicate, stateSuperfluous:
			if member.Status == filerecord.StatusBaddump && !f.Opts.DeleteDuplicate {
				f.Report.Line(subject(self.Path(), member.Name), report.VerbBestBadDump())
				continue
			}
			f.Report.Line(subject(self.Path(), member.Name), report.VerbDelete())
			f.Deletes.Push(deletelist.KindSuperfluous, deletelist.Entry{Archive: self.Path(), Name: member.Name})

		case stateNeeded:
			if _, err := f.Pools.SaveToNeeded(self, idx, member); err != nil {
				return recheck, err
			}
			f.Deletes.Push(deletelist.KindNeeded, deletelist.Entry{Archive: self.Path(), Name: member.Name})
			f.Report.Linef(subject(self.Path(), member.Name), "save needed file '%s'", member.Name)
			for _, t := range []romhash.Type{romhash.SHA256, romhash.SHA1, romhash.MD5, romhash.CRC32} {
				d := member.Hashes.Digest(t)
				if d == nil || f.Catalog == nil {
					continue
				}
				for _, ref := range f.Catalog.ReadFileByHash(t, d) {
					if ref.Game != gameName {
						recheck = append(recheck, RecheckSignal{Game: ref.Game, FileIndex: ref.FileIndex})
					}
				}
			}
		}
	}
	return recheck, nil
}

// makeSpace implements the "make space" subroutine: before writing name
// into self, evict whatever live member currently occupies it (deleting a
// baddump occupant, renaming-to-unique anything else), unless that
// occupant already is excludeIdx (the very member being operated on).
func makeSpace(self archive.Handle, name string, excludeIdx int) error {
	idx, ok := self.FileIndexByName(name)
	if !ok || idx == excludeIdx {
		return nil
	}
	occupant, _ := self.FileAt(idx)
	if occupant.Status == filerecord.StatusBaddump {
		return self.Delete(idx)
	}
	_, err := self.RenameToUnique(idx)
	return err
}

// ensureSelf opens self lazily if it does not exist yet (Step A: the
// planner creates an empty archive when the game owns no on-disk file at
// all).
func (f *Fixer) ensureSelf(self archive.Handle, path string) (archive.Handle, error) {
	if self != nil {
		return self, nil
	}
	return f.Opener(path, archive.LocationSelf, archive.FlagCreate)
}

// FixGame runs Steps A through D for one game: member sweep followed by
// the expected-file loop, then a topologically ordered commit (garbage
// archives this game touched, then self) with rollback of both the
// archive and the delete-list marks on failure.
func (f *Fixer) FixGame(gameName, selfPath string, expected []filerecord.File, archives matcher.Archives, result matcher.Result) ([]RecheckSignal, error) {
	mark := f.Deletes.Mark()

	self, err := f.ensureSelf(archives.Self, selfPath)
	if err != nil {
		return nil, err
	}
	archives.Self = self

	recheck, err := f.sweepMembers(gameName, self, result.Matches)
	if err != nil {
		f.Deletes.RollbackToMark(mark)
		self.Rollback()
		return nil, err
	}

	for ei, expectedFile := range expected {
		if expectedFile.Kind == filerecord.KindDisk {
			continue
		}
		m := result.Matches[ei]
		more, err := f.applyMatch(gameName, ei, expectedFile, self, m)
		if err != nil {
			f.Deletes.RollbackToMark(mark)
			self.Rollback()
			for _, g := range f.Pools.OpenGarbageArchives() {
				g.Rollback()
			}
			return nil, err
		}
		recheck = append(recheck, more...)
	}

	if !f.Opts.FixDo {
		self.Rollback()
		for _, g := range f.Pools.OpenGarbageArchives() {
			g.Rollback()
		}
		return recheck, nil
	}

	for _, g := range f.Pools.OpenGarbageArchives() {
		if err := g.Commit(); err != nil {
			f.Deletes.RollbackToMark(mark)
			self.Rollback()
			return nil, err
		}
	}
	if err := self.Commit(); err != nil {
		f.Deletes.RollbackToMark(mark)
		self.Rollback()
		return nil, err
	}

	return recheck, nil
}

// applyMatch implements Step C for a single expected file.
func (f *Fixer) applyMatch(gameName string, ei int, expected filerecord.File, self archive.Handle, m matcher.Match) ([]RecheckSignal, error) {
	subj := subject(self.Path(), expected.Name)

	switch m.Quality {
	case matcher.QualityMissing:
		if expected.IsZeroSize() {
			if err := makeSpace(self, expected.Name, -1); err != nil {
				return nil, err
			}
			if _, err := self.AddEmpty(expected.Name); err != nil {
				return nil, err
			}
			f.Report.Line(subj, report.VerbAddFrom(expected.Name, "(created)"))
			return nil, nil
		}
		f.Report.Line(subj, report.VerbMissing())
		return nil, nil

	case matcher.QualityUnknown, matcher.QualityOld, matcher.QualityNoHash:
		// Irrecoverable from this candidate set; report and move on.
		f.Report.Line(subj, report.VerbUnknown())
		return nil, nil

	case matcher.QualityLong:
		if !m.LongFixed {
			size, _ := expected.Hashes.Size()
			f.Report.Line(subj, report.VerbTooLongUnfixable(size))
			return nil, nil
		}
		return f.applyLong(gameName, ei, expected, self, m)

	case matcher.QualityNameErr:
		return f.applyNameErr(gameName, expected, self, m)

	case matcher.QualityCopied, matcher.QualityInZip:
		return f.applyCopied(gameName, expected, self, m)

	case matcher.QualityOK:
		f.Report.Line(subj, report.VerbCorrect())
		return nil, nil
	}
	return nil, nil
}

func (f *Fixer) applyLong(gameName string, ei int, expected filerecord.File, self archive.Handle, m matcher.Match) ([]RecheckSignal, error) {
	subj := subject(self.Path(), expected.Name)
	sourceSelf := m.Source == self

	if f.Opts.MoveLong && sourceSelf {
		garbage, err := f.Pools.GarbageFor(self.Path())
		if err != nil {
			return nil, err
		}
		srcFile, _ := m.Source.FileAt(m.SourceIdx)
		if _, err := garbage.Copy(m.Source, m.SourceIdx, srcFile.Name); err != nil {
			return nil, err
		}
	}

	if err := makeSpace(self, expected.Name, m.SourceIdx); err != nil {
		return nil, err
	}
	if _, err := self.CopyPart(m.Source, m.SourceIdx, expected.Name, m.Offset, sizeOf(expected), true, expected); err != nil {
		return nil, err
	}
	if sourceSelf {
		if err := self.Delete(m.SourceIdx); err != nil {
			return nil, err
		}
	}

	size, _ := expected.Hashes.Size()
	f.Report.Line(subj, report.VerbTooLongValidSubsection(m.Offset, size))
	return nil, nil
}

func sizeOf(f filerecord.File) int64 {
	size, _ := f.Hashes.Size()
	return size
}

func (f *Fixer) applyNameErr(gameName string, expected filerecord.File, self archive.Handle, m matcher.Match) ([]RecheckSignal, error) {
	subj := subject(self.Path(), expected.Name)
	sourceFile, _ := m.Source.FileAt(m.SourceIdx)

	if m.Source == self {
		if expected.Where == filerecord.WhereCloneOf || expected.Where == filerecord.WhereGrandCloneOf {
			if _, err := f.Pools.SaveToNeeded(self, m.SourceIdx, sourceFile); err == nil {
				f.Deletes.Push(deletelist.KindNeeded, deletelist.Entry{Archive: self.Path(), Name: sourceFile.Name})
				f.Report.Linef(subj, "save needed file '%s'", sourceFile.Name)
				return nil, nil
			}
		}
		if err := makeSpace(self, expected.Name, m.SourceIdx); err != nil {
			return nil, err
		}
		oldName := sourceFile.Name
		if err := self.Rename(m.SourceIdx, expected.Name); err != nil {
			return nil, err
		}
		f.Report.Line(subj, report.VerbRename(oldName, expected.Name))
		return nil, nil
	}

	return f.applyCopied(gameName, expected, self, m)
}

// isGarbageArchive reports whether h is one of the garbage archives opened
// so far this run — used to detect the "source is the current garbage
// archive of A" case in Step C's COPIED handling, where copying straight
// back out of garbage would undo the member sweep that just put it there.
func (f *Fixer) isGarbageArchive(h archive.Handle) bool {
	if h == nil {
		return false
	}
	for _, g := range f.Pools.OpenGarbageArchives() {
		if g == h {
			return true
		}
	}
	return false
}

func (f *Fixer) applyCopied(gameName string, expected filerecord.File, self archive.Handle, m matcher.Match) ([]RecheckSignal, error) {
	subj := subject(self.Path(), expected.Name)

	if m.Source == nil && m.SourcePath != "" {
		if h, err := f.Opener(m.SourcePath, m.Where, archive.FlagReadOnly); err == nil {
			m.Source = h
		}
	}
	if m.Source == nil {
		f.Report.Line(subj, report.VerbMissing())
		return nil, nil
	}

	if f.isGarbageArchive(m.Source) {
		sourceFile, _ := m.Source.FileAt(m.SourceIdx)
		if _, err := f.Pools.SaveToNeeded(m.Source, m.SourceIdx, sourceFile); err != nil {
			return nil, err
		}
		return []RecheckSignal{{Game: gameName}}, nil
	}

	if err := makeSpace(self, expected.Name, -1); err != nil {
		return nil, err
	}
	if _, err := self.Copy(m.Source, m.SourceIdx, expected.Name); err != nil {
		return nil, err
	}
	f.Report.Line(subj, report.VerbAddFrom(expected.Name, m.Source.Path()))
	return nil, nil
}

// FixDisks implements Step E: disk images are single-file blobs outside
// any archive container, swept by name/hash directly against a disk pool
// directory rather than an archive.Handle.
func (f *Fixer) FixDisks(gameName string, expected []filerecord.File, pool DiskPool) error {
	for _, e := range expected {
		if e.Kind != filerecord.KindDisk {
			continue
		}
		present, hashes, err := pool.Stat(e.Name)
		if err != nil {
			return err
		}
		subj := report.Subject{Archive: gameName, Member: e.Name}
		switch {
		case present && hashes.Compare(e.Hashes) == romhash.Match:
			f.Report.Line(subj, report.VerbCorrect())
		case present:
			f.Report.Line(subj, report.VerbWrongCRC(hashSummary(hashes)))
		default:
			found, sourcePath, err := pool.Find(e.Hashes)
			if err != nil {
				return err
			}
			if !found {
				f.Report.Line(subj, report.VerbMissing())
				continue
			}
			if f.Opts.FixDo {
				if err := pool.CopyInto(sourcePath, e.Name); err != nil {
					return err
				}
			}
			f.Report.Line(subj, report.VerbAddFrom(e.Name, sourcePath))
		}
	}
	return nil
}

// DiskPool is the collaborator interface FixDisks uses for disk-image
// placement: a directory of loose files addressed by name and content
// hash rather than an archive.Handle's staged-member model.
type DiskPool interface {
	Stat(name string) (present bool, hashes romhash.Hashes, err error)
	Find(want romhash.Hashes) (found bool, sourcePath string, err error)
	CopyInto(sourcePath, destName string) error
}
