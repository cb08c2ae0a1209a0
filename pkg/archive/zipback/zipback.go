// Package zipback implements the ZIP-container archive backend. A ZIP's
// central directory cannot be edited in place, so every commit rewrites the
// whole container to a fresh buffer and writes it into place with the same
// atomic-rename building block the directory backend uses for individual
// members.
package zipback

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/ckerr"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/fsutil"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// Archive is the ZIP-container backend.
type Archive struct {
	*archive.Core

	// id is a stable handle identifier, exposed for callers that want to
	// key auxiliary maps (e.g. the global file index) by archive rather
	// than by path.
	id string

	// contents caches payload bytes already read from the on-disk
	// container this commit cycle, indexed by member-slice index.
	contents map[int][]byte
}

// Open opens the ZIP archive at path. If the file does not exist and flags
// carries archive.FlagCreate, an empty handle is returned; members are
// populated by scanning the container's central directory (populating from
// the side-car cache instead is pkg/cache's concern, applied by the
// caller before use).
func Open(path string, location archive.Location, flags archive.Flag) (*Archive, error) {
	var initial []filerecord.File

	r, err := zip.OpenReader(path)
	switch {
	case err == nil:
		defer r.Close()
		for _, zf := range r.File {
			var h romhash.Hashes
			h.SetSize(int64(zf.UncompressedSize64))
			h.SetCRC32(zf.CRC32)
			initial = append(initial, filerecord.File{
				Name:   zf.Name,
				Hashes: h,
				Where:  filerecord.WhereInGame,
				Mtime:  zf.Modified,
			})
		}
	case os.IsNotExist(err):
		if !flags.Has(archive.FlagCreate) {
			return nil, ckerr.NewIO(path, err)
		}
	default:
		return nil, &ckerr.FormatError{Path: path, Reason: err.Error()}
	}

	return &Archive{
		Core:     archive.NewCore(path, archive.KindZip, location, flags, initial),
		id:       uuid.NewString(),
		contents: make(map[int][]byte),
	}, nil
}

// ID returns the handle's stable identifier.
func (a *Archive) ID() string { return a.id }

func (a *Archive) readOriginal(index int) ([]byte, error) {
	if data, ok := a.contents[index]; ok {
		return data, nil
	}
	name := a.OriginalName(index)

	r, err := zip.OpenReader(a.Path())
	if err != nil {
		return nil, ckerr.NewIO(a.Path(), err)
	}
	defer r.Close()

	for _, zf := range r.File {
		if zf.Name != name {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, ckerr.NewIO(a.Path(), err)
		}
		defer rc.Close()
		data, err := ioutil.ReadAll(rc)
		if err != nil {
			return nil, ckerr.NewIO(a.Path(), err)
		}
		a.contents[index] = data
		return data, nil
	}
	return nil, fmt.Errorf("zipback: %s: member %q not found on disk", a.Path(), name)
}

// ReadMember returns a member's current on-disk payload. It is used both
// as the archive.Handle method callers use to copy bytes between archives,
// and internally to carry forward untouched members during Commit.
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

// Commit applies every staged mutation, rewriting the whole container.
func (a *Archive) Commit() error {
	if a.Flags().Has(archive.FlagReadOnly) {
		return &ckerr.ReadOnlyError{Archive: a.Path(), Op: "commit"}
	}

	if a.Empty() {
		if !a.Flags().Has(archive.FlagKeepEmpty) {
			if err := os.Remove(a.Path()); err != nil && !os.IsNotExist(err) {
				return ckerr.NewIO(a.Path(), err)
			}
		}
		a.FinalizeCommit()
		a.contents = make(map[int][]byte)
		return nil
	}

	payloads, err := a.ComposeCommitPayloads(a.readOriginal)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, i := range a.LiveIndices() {
		f, _ := a.FileAt(i)
		zf, err := w.Create(f.Name)
		if err != nil {
			return ckerr.NewIO(a.Path(), err)
		}
		if _, err := zf.Write(payloads[i]); err != nil {
			return ckerr.NewIO(a.Path(), err)
		}
	}
	if err := w.Close(); err != nil {
		return ckerr.NewIO(a.Path(), err)
	}

	if err := os.MkdirAll(filepath.Dir(a.Path()), 0755); err != nil {
		return ckerr.NewIO(a.Path(), err)
	}
	if err := fsutil.WriteFileAtomic(a.Path(), buf.Bytes(), 0644); err != nil {
		return ckerr.NewIO(a.Path(), err)
	}

	a.FinalizeCommit()
	a.contents = make(map[int][]byte)
	return nil
}

// Rollback discards every staged mutation.
func (a *Archive) Rollback() error {
	a.DiscardStaged()
	a.contents = make(map[int][]byte)
	return nil
}
