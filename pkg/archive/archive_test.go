package archive

import (
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// fakeHandle is a minimal in-memory Handle used to exercise Core's staging
// logic without pulling in a concrete backend.
type fakeHandle struct {
	*Core
	payloads map[int][]byte
}

func newFakeHandle(files []filerecord.File, payloads map[int][]byte) *fakeHandle {
	return &fakeHandle{Core: NewCore("fake", KindDirectory, LocationSelf, 0, files), payloads: payloads}
}

func (f *fakeHandle) ReadMember(index int) ([]byte, error) { return f.payloads[index], nil }
func (f *fakeHandle) ComputeHashes(index int, mask romhash.Type) error { return nil }
func (f *fakeHandle) Commit() error                                   { f.FinalizeCommit(); return nil }
func (f *fakeHandle) Rollback() error                                 { f.DiscardStaged(); return nil }

func hashesFor(size int64, crc uint32) romhash.Hashes {
	var h romhash.Hashes
	h.SetSize(size)
	h.SetCRC32(crc)
	return h
}

func TestCoreAddEmptyAndFileIndexByName(t *testing.T) {
	c := NewCore("game.zip", KindZip, LocationSelf, 0, nil)
	idx, err := c.AddEmpty("rom.bin")
	if err != nil {
		t.Fatalf("AddEmpty: %v", err)
	}
	if got, ok := c.FileIndexByName("rom.bin"); !ok || got != idx {
		t.Fatalf("FileIndexByName = (%d, %v), want (%d, true)", got, ok, idx)
	}
	if _, err := c.AddEmpty("rom.bin"); err == nil {
		t.Fatal("expected error adding a duplicate name")
	}
}

func TestCoreDeleteTombstonesAndHidesFromFiles(t *testing.T) {
	c := NewCore("game.zip", KindZip, LocationSelf, 0, []filerecord.File{
		{Name: "a.bin", Hashes: hashesFor(4, 1)},
	})
	if err := c.Delete(0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(c.Files()) != 0 {
		t.Fatalf("expected tombstoned member to be hidden, got %d files", len(c.Files()))
	}
	if _, ok := c.FileIndexByName("a.bin"); ok {
		t.Fatal("expected tombstoned member to be invisible to FileIndexByName")
	}
}

func TestCoreRenameToUniqueAvoidsCollisions(t *testing.T) {
	c := NewCore("game.zip", KindZip, LocationSelf, 0, []filerecord.File{
		{Name: "a.bin", Hashes: hashesFor(4, 1)},
		{Name: "a-000.bin", Hashes: hashesFor(4, 2)},
	})
	name, err := c.RenameToUnique(0)
	if err != nil {
		t.Fatalf("RenameToUnique: %v", err)
	}
	if name != "a-001.bin" {
		t.Fatalf("got %q, want a-001.bin", name)
	}
}

func TestCoreRollbackRestoresRenameAndDelete(t *testing.T) {
	c := NewCore("game.zip", KindZip, LocationSelf, 0, []filerecord.File{
		{Name: "a.bin", Hashes: hashesFor(4, 1)},
		{Name: "b.bin", Hashes: hashesFor(4, 2)},
	})
	if err := c.Rename(0, "renamed.bin"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := c.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.AddEmpty("new.bin"); err != nil {
		t.Fatalf("AddEmpty: %v", err)
	}

	c.DiscardStaged()

	files := c.Files()
	if len(files) != 2 {
		t.Fatalf("got %d files after rollback, want 2", len(files))
	}
	if files[0].Name != "a.bin" || files[1].Name != "b.bin" {
		t.Fatalf("rollback did not restore original names: %+v", files)
	}
}

func TestCoreCopyAcrossArchives(t *testing.T) {
	src := newFakeHandle([]filerecord.File{
		{Name: "source.bin", Hashes: hashesFor(4, 0xabcd)},
	}, map[int][]byte{0: {1, 2, 3, 4}})

	dst := NewCore("dest.zip", KindZip, LocationSelf, 0, nil)
	idx, err := dst.Copy(src, 0, "dest.bin")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	payloads, err := dst.ComposeCommitPayloads(func(int) ([]byte, error) { return nil, nil })
	if err != nil {
		t.Fatalf("ComposeCommitPayloads: %v", err)
	}
	if string(payloads[idx]) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("got payload %v, want {1,2,3,4}", payloads[idx])
	}
}

func TestCoreCopyPartRange(t *testing.T) {
	src := newFakeHandle([]filerecord.File{
		{Name: "source.bin", Hashes: hashesFor(8, 1)},
	}, map[int][]byte{0: {0, 1, 2, 3, 4, 5, 6, 7}})

	dst := NewCore("dest.zip", KindZip, LocationSelf, 0, nil)
	expected := filerecord.File{Name: "dest.bin", Hashes: hashesFor(3, 2)}
	idx, err := dst.CopyPart(src, 0, "dest.bin", 2, 3, true, expected)
	if err != nil {
		t.Fatalf("CopyPart: %v", err)
	}
	payloads, err := dst.ComposeCommitPayloads(func(int) ([]byte, error) { return nil, nil })
	if err != nil {
		t.Fatalf("ComposeCommitPayloads: %v", err)
	}
	want := []byte{2, 3, 4}
	if string(payloads[idx]) != string(want) {
		t.Fatalf("got %v, want %v", payloads[idx], want)
	}
}

func TestCoreReadOnlyRejectsMutation(t *testing.T) {
	c := NewCore("game.zip", KindZip, LocationSelf, FlagReadOnly, nil)
	if _, err := c.AddEmpty("x.bin"); err == nil {
		t.Fatal("expected read-only archive to reject AddEmpty")
	}
}
