// Package dirback implements the filesystem-directory archive backend.
// Each staged new or replaced member is written to a uniquely named
// temporary path inside the archive directory; each existing member being
// carried forward unchanged (or just renamed) is first renamed aside to a
// sibling temp, so that no final rename below can ever collide with a file
// still sitting under its old name. Commit then renames every temp into
// its final position and unlinks the tombstoned originals; an empty
// archive directory is removed unless archive.FlagKeepEmpty is set.
package dirback

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/ckerr"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/fsutil"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Archive is the directory-container backend.
type Archive struct {
	*archive.Core

	id       string
	contents map[int][]byte
}

// Open scans the directory at path for its current members. A missing
// directory is only an error unless flags carries archive.FlagCreate, in
// which case an empty handle is returned and the directory is created
// lazily on Commit.
func Open(path string, location archive.Location, flags archive.Flag) (*Archive, error) {
	var initial []filerecord.File

	info, statErr := os.Stat(path)
	switch {
	case statErr == nil && info.IsDir():
		names, err := fsutil.DirectoryContents(path)
		if err != nil {
			return nil, ckerr.NewIO(path, err)
		}
		for _, name := range names {
			if strings.HasPrefix(name, fsutil.TemporaryNamePrefix) {
				continue
			}
			full := filepath.Join(path, name)
			fi, err := os.Stat(full)
			if err != nil || fi.IsDir() {
				continue
			}
			initial = append(initial, filerecord.File{
				Name:  name,
				Where: filerecord.WhereInGame,
				Mtime: fi.ModTime(),
			})
		}
	case os.IsNotExist(statErr):
		if !flags.Has(archive.FlagCreate) {
			return nil, ckerr.NewIO(path, statErr)
		}
	case statErr != nil:
		return nil, ckerr.NewIO(path, statErr)
	default:
		return nil, &ckerr.FormatError{Path: path, Reason: "exists but is not a directory"}
	}

	return &Archive{
		Core:     archive.NewCore(path, archive.KindDirectory, location, flags, initial),
		id:       uuid.NewString(),
		contents: make(map[int][]byte),
	}, nil
}

// ID returns the handle's stable identifier.
func (a *Archive) ID() string { return a.id }

func (a *Archive) memberPath(name string) string {
	return filepath.Join(a.Path(), name)
}

func (a *Archive) readOriginal(index int) ([]byte, error) {
	if data, ok := a.contents[index]; ok {
		return data, nil
	}
	name := a.OriginalName(index)
	data, err := os.ReadFile(a.memberPath(name))
	if err != nil {
		return nil, ckerr.NewIO(a.memberPath(name), err)
	}
	a.contents[index] = data
	return data, nil
}

// ReadMember returns a member's current on-disk payload.
func (a *Archive) ReadMember(index int) ([]byte, error) {
	return a.readOriginal(index)
}

// ComputeHashes reads a member's payload (if any requested type is
// missing) and fills in the missing hash types.
func (a *Archive) ComputeHashes(index int, mask romhash.Type) error {
	f, ok := a.FileAt(index)
	if !ok {
		return &ckerr.StateError{Archive: a.Path(), Op: "file_compute_hashes"}
	}
	missing := mask &^ f.Hashes.Types()
	if missing == 0 {
		return nil
	}
	data, err := a.readOriginal(index)
	if err != nil {
		a.SetComputedHashes(index, f.Hashes, filerecord.StatusBaddump)
		return err
	}
	u := romhash.NewUpdater(f.Hashes.Types() | missing)
	u.Write(data)
	a.SetComputedHashes(index, u.Finalize(), filerecord.StatusOK)
	return nil
}

type placement struct {
	tempPath   string
	finalName  string
	wasAside   bool
	sourcePath string
}

func (a *Archive) tempPathFor(name string) string {
	return filepath.Join(a.Path(), fsutil.TemporaryNamePrefix+name+"."+uuid.NewString())
}

// Commit applies every staged mutation.
func (a *Archive) Commit() error {
	if a.Flags().Has(archive.FlagReadOnly) {
		return &ckerr.ReadOnlyError{Archive: a.Path(), Op: "commit"}
	}

	if a.Empty() {
		if !a.Flags().Has(archive.FlagKeepEmpty) {
			if err := os.RemoveAll(a.Path()); err != nil {
				return ckerr.NewIO(a.Path(), err)
			}
		}
		a.FinalizeCommit()
		a.contents = make(map[int][]byte)
		return nil
	}

	if err := os.MkdirAll(a.Path(), 0755); err != nil {
		return ckerr.NewIO(a.Path(), err)
	}

	payloads, err := a.ComposeCommitPayloads(a.readOriginal)
	if err != nil {
		return err
	}
	pending := a.PendingIndices()

	var placements []placement
	for _, i := range a.LiveIndices() {
		f, _ := a.FileAt(i)
		temp := a.tempPathFor(f.Name)
		if pending[i] {
			if err := fsutil.WriteFileAtomic(temp, payloads[i], 0644); err != nil {
				a.rollbackPlacements(placements)
				return ckerr.NewIO(temp, err)
			}
			placements = append(placements, placement{tempPath: temp, finalName: f.Name})
			continue
		}
		sourcePath := a.memberPath(a.OriginalName(i))
		if err := os.Rename(sourcePath, temp); err != nil {
			a.rollbackPlacements(placements)
			return ckerr.NewIO(sourcePath, err)
		}
		placements = append(placements, placement{tempPath: temp, finalName: f.Name, wasAside: true, sourcePath: sourcePath})
	}

	deleted := a.TombstonedOriginalNames()

	for _, p := range placements {
		finalPath := a.memberPath(p.finalName)
		if err := fsutil.RenameReplace(p.tempPath, finalPath); err != nil {
			return ckerr.NewIO(finalPath, err)
		}
	}

	for _, name := range deleted {
		os.Remove(a.memberPath(name))
	}

	a.FinalizeCommit()
	a.contents = make(map[int][]byte)
	return nil
}

// rollbackPlacements is the best-effort recovery path when Commit fails
// partway through preparing temp files: any original already renamed aside
// is moved back, and any temp already written fresh is removed.
func (a *Archive) rollbackPlacements(placements []placement) {
	for _, p := range placements {
		if p.wasAside {
			os.Rename(p.tempPath, p.sourcePath)
		} else {
			os.Remove(p.tempPath)
		}
	}
}

// Rollback discards every staged mutation. No on-disk member is touched,
// since Commit only renames anything into place after every temp file has
// been prepared successfully.
func (a *Archive) Rollback() error {
	a.DiscardStaged()
	a.contents = make(map[int][]byte)
	return nil
}
