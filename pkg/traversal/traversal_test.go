package traversal

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/engine"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/planner"
	"github.com/nih-at/ckmame-sub001/pkg/report"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
	"github.com/nih-at/ckmame-sub001/pkg/staging"
)

func setup(t *testing.T, fixDo bool) (*Walker, *strings.Builder, string) {
	t.Helper()
	root := t.TempDir()
	var sb strings.Builder

	cat := catalog.NewMemory()

	var zero romhash.Hashes
	zero.SetSize(0)
	cat.WriteGame(catalog.Game{Name: "g1", Files: []filerecord.File{{Name: "empty.bin", Hashes: zero}}})

	e := engine.New(engine.Options{FixDo: fixDo, RomsUnzipped: true}, cat, nil, filepath.Join(root, "needed"), report.New(&sb))

	fixer := planner.New(e.PlannerOptions(), e.Pools, e.Deletes, cat, e.Index, e.Report, staging.ForKind(archive.KindDirectory))

	layout := DirLayout{Root: root, Kind: archive.KindDirectory}
	w := New(e, layout, fixer)
	return w, &sb, root
}

func TestVisitGameDryRunReportsAddEmpty(t *testing.T) {
	w, out, _ := setup(t, false)
	res := w.VisitGame("g1")
	if res.Err != nil {
		t.Fatalf("VisitGame: %v", res.Err)
	}
	if !strings.Contains(out.String(), "add empty.bin") {
		t.Fatalf("expected a dry-run add-empty diagnostic, got %q", out.String())
	}
}

func TestRunFixesZeroSizeFile(t *testing.T) {
	w, out, _ := setup(t, true)
	results := w.Run([]string{"g1"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("Run: %v", results[0].Err)
	}
	if !strings.Contains(out.String(), "add empty.bin") {
		t.Fatalf("expected an add diagnostic, got %q", out.String())
	}
}

func TestVisitGameUnknownNameIsNoop(t *testing.T) {
	w, _, _ := setup(t, false)
	res := w.VisitGame("does-not-exist")
	if res.Err != nil {
		t.Fatalf("VisitGame: %v", res.Err)
	}
	if res.Recheck != nil {
		t.Fatal("expected no recheck signals for an unknown game")
	}
}
