package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
)

// matchSummary projects the fields of a Match that a test actually wants to
// assert on. Match.Source is deliberately excluded: it is an archive.Handle
// wrapping a *fakeHandle{*archive.Core}, and cmp panics by default on the
// unexported fields archive.Core carries.
type matchSummary struct {
	Quality   Quality
	SourceIdx int
	Where     archive.Location
}

func summarize(m Match) matchSummary {
	return matchSummary{Quality: m.Quality, SourceIdx: m.SourceIdx, Where: m.Where}
}

type fakeHandle struct {
	*archive.Core
}

func (f *fakeHandle) ReadMember(index int) ([]byte, error)            { return nil, nil }
func (f *fakeHandle) ComputeHashes(index int, mask romhash.Type) error { return nil }
func (f *fakeHandle) Commit() error                                    { return nil }
func (f *fakeHandle) Rollback() error                                  { return nil }

func newHandle(path string, loc archive.Location, files []filerecord.File) *fakeHandle {
	return &fakeHandle{Core: archive.NewCore(path, archive.KindZip, loc, 0, files)}
}

func hashesFor(size int64, crc uint32) romhash.Hashes {
	var h romhash.Hashes
	h.SetSize(size)
	h.SetCRC32(crc)
	return h
}

func TestMatchRename(t *testing.T) {
	self := newHandle("g1.zip", archive.LocationSelf, []filerecord.File{
		{Name: "wrong.bin", Hashes: hashesFor(4, 0x12345678)},
	})
	expected := []filerecord.File{
		{Name: "right.bin", Hashes: hashesFor(4, 0x12345678)},
	}

	result := Match(expected, Archives{Self: self}, Options{})
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	want := matchSummary{Quality: QualityNameErr, SourceIdx: 0, Where: archive.LocationSelf}
	if diff := cmp.Diff(want, summarize(result.Matches[0])); diff != "" {
		t.Fatalf("match mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchOK(t *testing.T) {
	self := newHandle("g.zip", archive.LocationSelf, []filerecord.File{
		{Name: "rom.bin", Hashes: hashesFor(4, 0xdeadbeef)},
	})
	expected := []filerecord.File{
		{Name: "rom.bin", Hashes: hashesFor(4, 0xdeadbeef)},
	}
	result := Match(expected, Archives{Self: self}, Options{})
	if result.Matches[0].Quality != QualityOK {
		t.Fatalf("quality = %v, want OK", result.Matches[0].Quality)
	}
}

func TestMatchMissing(t *testing.T) {
	result := Match([]filerecord.File{
		{Name: "rom.bin", Hashes: hashesFor(4, 1)},
	}, Archives{}, Options{})
	if result.Matches[0].Quality != QualityMissing {
		t.Fatalf("quality = %v, want Missing", result.Matches[0].Quality)
	}
}

func TestMatchNodumpSatisfiedByName(t *testing.T) {
	self := newHandle("g.zip", archive.LocationSelf, []filerecord.File{
		{Name: "rom.bin", Hashes: hashesFor(4, 0xffffffff)},
	})
	expected := []filerecord.File{
		{Name: "rom.bin", Status: filerecord.StatusNodump},
	}
	result := Match(expected, Archives{Self: self}, Options{})
	if result.Matches[0].Quality != QualityOK {
		t.Fatalf("quality = %v, want OK for nodump match-by-name", result.Matches[0].Quality)
	}
}

func TestMatchMarriageDisplacement(t *testing.T) {
	// Two expected files both name the same single source; the stronger
	// match (exact name+hash) should win it, displacing the weaker
	// name-mismatch claim, which then falls back to Missing (no other
	// candidate available).
	self := newHandle("g.zip", archive.LocationSelf, []filerecord.File{
		{Name: "a.bin", Hashes: hashesFor(4, 0x1)},
	})
	expected := []filerecord.File{
		{Name: "b.bin", Hashes: hashesFor(4, 0x1)}, // NAMERR candidate on a.bin
		{Name: "a.bin", Hashes: hashesFor(4, 0x1)}, // OK candidate on a.bin
	}
	result := Match(expected, Archives{Self: self}, Options{})

	wantWinner := matchSummary{Quality: QualityOK, SourceIdx: 0, Where: archive.LocationSelf}
	if diff := cmp.Diff(wantWinner, summarize(result.Matches[1])); diff != "" {
		t.Fatalf("winning match mismatch (-want +got):\n%s", diff)
	}
	wantDisplaced := matchSummary{Quality: QualityMissing, SourceIdx: 0, Where: archive.LocationUnknown}
	if diff := cmp.Diff(wantDisplaced, summarize(result.Matches[0])); diff != "" {
		t.Fatalf("displaced match mismatch (-want +got):\n%s", diff)
	}
}
