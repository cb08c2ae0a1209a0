package staging

import (
	"path/filepath"
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

func TestGarbageForNamesFromSourceBasename(t *testing.T) {
	dir := t.TempDir()
	pools := NewPools(filepath.Join(dir, "needed"), archive.KindDirectory)

	source := filepath.Join(dir, "roms", "pacman")
	h, err := pools.GarbageFor(source)
	if err != nil {
		t.Fatalf("GarbageFor: %v", err)
	}
	want := filepath.Join(dir, "roms", "garbage", "pacman")
	if h.Path() != want {
		t.Fatalf("garbage path = %s, want %s", h.Path(), want)
	}

	h2, err := pools.GarbageFor(source)
	if err != nil {
		t.Fatalf("GarbageFor (2nd): %v", err)
	}
	if h2 != h {
		t.Fatal("expected GarbageFor to reuse the same handle for the same source")
	}
}

func TestNeededNameUsesHashPrefix(t *testing.T) {
	var h romhash.Hashes
	h.SetSize(4)
	h.SetCRC32(0xdeadbeef)
	name := neededName(filerecord.File{Name: "rom.bin", Hashes: h})
	if name != "deadbeef-rom.bin" {
		t.Fatalf("neededName = %q, want deadbeef-rom.bin", name)
	}
}
