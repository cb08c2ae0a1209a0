package filerecord

import (
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

func withHashes(size int64, crc uint32) romhash.Hashes {
	var h romhash.Hashes
	h.SetSize(size)
	h.SetCRC32(crc)
	return h
}

func TestCompareSizeHashes(t *testing.T) {
	a := File{Name: "a.bin", Hashes: withHashes(4, 0xdeadbeef)}
	b := File{Name: "b.bin", Hashes: withHashes(4, 0xdeadbeef)}
	if !a.CompareSizeHashes(b) {
		t.Fatal("expected matching size+crc to compare equal")
	}

	c := File{Name: "c.bin", Hashes: withHashes(4, 0x11111111)}
	if a.CompareSizeHashes(c) {
		t.Fatal("expected mismatched crc to compare unequal")
	}

	var noSize romhash.Hashes
	noSize.SetCRC32(0xdeadbeef)
	d := File{Name: "d.bin", Hashes: noSize}
	if !a.CompareSizeHashes(d) {
		t.Fatal("expected size-unknown side to still match on crc")
	}
}

func TestIsMergable(t *testing.T) {
	parent := File{Name: "parent.bin", Hashes: withHashes(10, 1)}

	noMergeName := File{Name: "child.bin", Hashes: withHashes(10, 1)}
	if !noMergeName.IsMergable(parent) {
		t.Fatal("expected file with empty merge name to be mergable on hash match")
	}

	matchingMerge := File{Name: "child.bin", Merge: "parent.bin", Hashes: withHashes(10, 1)}
	if !matchingMerge.IsMergable(parent) {
		t.Fatal("expected matching merge name to be mergable")
	}

	wrongMerge := File{Name: "child.bin", Merge: "other.bin", Hashes: withHashes(10, 1)}
	if wrongMerge.IsMergable(parent) {
		t.Fatal("expected mismatched merge name to not be mergable")
	}

	wrongHash := File{Name: "child.bin", Hashes: withHashes(10, 2)}
	if wrongHash.IsMergable(parent) {
		t.Fatal("expected mismatched hash to not be mergable")
	}
}

func TestEnsureValidNodump(t *testing.T) {
	var h romhash.Hashes
	h.SetCRC32(1)
	f := File{Name: "x", Status: StatusNodump, Hashes: h}
	if err := f.EnsureValid(); err == nil {
		t.Fatal("expected error for nodump file carrying a CRC")
	}
}
