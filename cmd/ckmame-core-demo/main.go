// Command ckmame-core-demo wires the verification/repair core into one
// runnable binary: a literal single-game catalog fixture (DAT parsing is
// out of scope for the core, see pkg/catalog), pkg/engine as the run
// context, and pkg/traversal to drive the matcher/planner over it.
//
// It exists to exercise the pipeline end to end, not as a replacement for
// a real DAT-driven front end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/detector"
	"github.com/nih-at/ckmame-sub001/pkg/engine"
	"github.com/nih-at/ckmame-sub001/pkg/filerecord"
	"github.com/nih-at/ckmame-sub001/pkg/planner"
	"github.com/nih-at/ckmame-sub001/pkg/report"
	"github.com/nih-at/ckmame-sub001/pkg/romhash"
	"github.com/nih-at/ckmame-sub001/pkg/staging"
	"github.com/nih-at/ckmame-sub001/pkg/traversal"
)

func main() {
	var (
		romdir          = pflag.StringP("romdir", "r", ".", "directory holding one subdirectory (or .zip) per game")
		neededDir       = pflag.String("needed-dir", "", "directory for the needed/ staging pool (default: <romdir>/needed)")
		fixDo           = pflag.Bool("fix", false, "apply repairs instead of only reporting them")
		moveUnknown     = pflag.Bool("move-unknown", false, "move unrecognized files to a garbage/ sibling instead of deleting them")
		moveLong        = pflag.Bool("move-long", false, "preserve oversized files' full bytes in garbage/ after extracting the valid subrange")
		deleteDuplicate = pflag.Bool("delete-duplicate", false, "delete members that duplicate content already correctly placed elsewhere")
		deleteExtra     = pflag.Bool("delete-extra", false, "extra-pool delete option; has no effect, the fixer does not read it")
		ignoreUnknown   = pflag.Bool("ignore-unknown", false, "skip unrecognized-file handling entirely")
		romsUnzipped    = pflag.Bool("roms-unzipped", true, "treat each game as a plain directory rather than a .zip archive")
	)
	pflag.Parse()

	if *neededDir == "" {
		*neededDir = *romdir + "/needed"
	}

	cat := demoCatalog()
	det := &detector.Detector{}

	opts := engine.Options{
		FixDo:           *fixDo,
		MoveUnknown:     *moveUnknown,
		MoveLong:        *moveLong,
		DeleteDuplicate: *deleteDuplicate,
		DeleteExtra:     *deleteExtra,
		IgnoreUnknown:   *ignoreUnknown,
		RomsUnzipped:    *romsUnzipped,
	}

	rep := report.New(os.Stdout)
	e := engine.New(opts, cat, det, *neededDir, rep)
	defer func() {
		if err := e.FlushCaches(); err != nil {
			fmt.Fprintf(os.Stderr, "flush caches: %v\n", err)
		}
	}()

	kind := archive.KindZip
	if *romsUnzipped {
		kind = archive.KindDirectory
	}
	fixer := planner.New(e.PlannerOptions(), e.Pools, e.Deletes, cat, e.Index, rep, staging.ForKind(kind))

	layout := traversal.DirLayout{Root: *romdir, Kind: kind}
	walker := traversal.New(e, layout, fixer)

	results := walker.Run([]string{"example"})

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Game, res.Err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// demoCatalog builds the single-game fixture this binary verifies against:
// a real front end would populate an equivalent catalog.Catalog by parsing
// a DAT file (out of scope here, see pkg/catalog's package comment).
func demoCatalog() catalog.Catalog {
	cat := catalog.NewMemory()

	var empty romhash.Hashes
	empty.SetSize(0)

	var expected romhash.Hashes
	expected.SetSize(4)
	expected.SetCRC32(0xdeadbeef)

	cat.WriteGame(catalog.Game{
		Name: "example",
		Files: []filerecord.File{
			{Name: "empty.bin", Kind: filerecord.KindROM, Hashes: empty},
			{Name: "example.bin", Kind: filerecord.KindROM, Hashes: expected},
		},
	})
	return cat
}
