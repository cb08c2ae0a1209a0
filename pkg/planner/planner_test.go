package planner

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/archive/dirback"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/deletelist"
	"github.com/nih-at/ckmame-sub001/pkg/fileindex"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/matcher"
	"github.com/nih-at/ckmame-sub001/pkg/report"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
	"github.com/nih-at/ckmame-sub001/pkg/staging"
)

func hashesFor(size int64, crc uint32) romhash.Hashes {
	var h romhash.Hashes
	h.SetSize(size)
	h.SetCRC32(crc)
	return h
}

func newFixer(t *testing.T, root string, fixDo bool) (*Fixer, *strings.Builder) {
	t.Helper()
	var sb strings.Builder
	pools := staging.NewPools(filepath.Join(root, "needed"), archive.KindDirectory)
	opener := staging.ForKind(archive.KindDirectory)
	f := New(Options{FixDo: fixDo}, pools, deletelist.New(), catalog.NewMemory(), fileindex.New(), report.New(&sb), opener)
	return f, &sb
}

func TestFixGameMissingDryRun(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "g1")

	self, err := dirback.Open(gameDir, archive.LocationSelf, archive.FlagCreate)
	if err != nil {
		t.Fatalf("open self: %v", err)
	}

	f, out := newFixer(t, root, false)

	expected := []filerecord.File{
		{Name: "right.bin", Hashes: hashesFor(4, 0x1)},
	}
	archives := matcher.Archives{Self: self}
	result := matcher.Result{Matches: []matcher.Match{{Quality: matcher.QualityMissing}}}

	_, err = f.FixGame("g1", gameDir, expected, archives, result)
	if err != nil {
		t.Fatalf("FixGame: %v", err)
	}
	if !strings.Contains(out.String(), "missing") {
		t.Fatalf("expected a missing diagnostic, got %q", out.String())
	}
}

func TestFixGameZeroSizeAddsEmpty(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "g2")

	self, err := dirback.Open(gameDir, archive.LocationSelf, archive.FlagCreate)
	if err != nil {
		t.Fatalf("open self: %v", err)
	}

	f, out := newFixer(t, root, true)

	var zero romhash.Hashes
	zero.SetSize(0)
	expected := []filerecord.File{{Name: "empty.bin", Hashes: zero}}
	archives := matcher.Archives{Self: self}
	result := matcher.Result{Matches: []matcher.Match{{Quality: matcher.QualityMissing}}}

	recheck, err := f.FixGame("g2", gameDir, expected, archives, result)
	if err != nil {
		t.Fatalf("FixGame: %v", err)
	}
	if !strings.Contains(out.String(), "add empty.bin") {
		t.Fatalf("expected an add diagnostic, got %q", out.String())
	}
	// An empty catalog has nothing to recheck against: adding the empty
	// file cannot satisfy any other game's needed list.
	if diff := cmp.Diff([]RecheckSignal(nil), recheck); diff != "" {
		t.Fatalf("recheck signals mismatch (-want +got):\n%s", diff)
	}
}
