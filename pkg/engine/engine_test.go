package engine

import (
	"path/filepath"
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
)

func TestOpenArchiveReusesHandle(t *testing.T) {
	root := t.TempDir()
	e := New(Options{RomsUnzipped: true}, catalog.NewMemory(), nil, filepath.Join(root, "needed"), nil)

	path := filepath.Join(root, "pacman")
	h1, err := e.OpenArchive(path, archive.LocationSelf, archive.FlagCreate)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	h2, err := e.OpenArchive(path, archive.LocationSelf, archive.FlagCreate)
	if err != nil {
		t.Fatalf("OpenArchive (2nd): %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected the same handle to be reused for the same path")
	}

	if got := e.ResolveArchive(path); got != h1 {
		t.Fatal("ResolveArchive should return the open handle")
	}

	e.CloseArchive(path)
	if got := e.ResolveArchive(path); got != nil {
		t.Fatal("ResolveArchive should return nil after CloseArchive")
	}
}

func TestCacheForReusesStore(t *testing.T) {
	root := t.TempDir()
	e := New(Options{}, catalog.NewMemory(), nil, filepath.Join(root, "needed"), nil)

	s1, err := e.CacheFor(root)
	if err != nil {
		t.Fatalf("CacheFor: %v", err)
	}
	s2, err := e.CacheFor(root)
	if err != nil {
		t.Fatalf("CacheFor (2nd): %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same cache Store to be reused for the same root")
	}
	if err := e.FlushCaches(); err != nil {
		t.Fatalf("FlushCaches: %v", err)
	}
}
