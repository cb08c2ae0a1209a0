// Package traversal implements spec.md §4.10: the walk over the catalog's
// game dependency graph (a game's clone-of parent, and that parent's own
// clone-of grandparent), visiting every game once, running the matcher and
// planner against it, and reprocessing a game later if a planner step moved
// content it might now be able to use.
//
// The "visit a DAG, track a visited set, and recheck on a detected
// dependency cycle's tail" shape is grounded on the teacher's
// cmd/mutagen/sync_list.go / core traversal of session dependency state,
// generalized from a flat visited-set walk to a worklist with recheck.
// Walker.checked is allocated but not read: a game is visited again each
// time a recheck signal names it.
package traversal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/deletelist"
	"github.com/nih-at/ckmame-sub001/pkg/engine"
	"github.com/nih-at/ckmame-sub001/pkg/matcher"
	"github.com/nih-at/ckmame-sub001/pkg/planner"
)

// Layout resolves a game's archive path from its name, so the traversal
// does not hardcode a directory convention; a front end supplies this
// (e.g. "<romdir>/<name>.zip" or "<romdir>/<name>/" for the unzipped case).
type Layout interface {
	ArchivePath(game string) string
}

// DirLayout is the simple Layout every ckmame-style front end actually
// uses: one archive (or directory) per game directly under Root.
type DirLayout struct {
	Root string
	Kind archive.Kind
}

// ArchivePath implements Layout.
func (l DirLayout) ArchivePath(game string) string {
	if l.Kind == archive.KindDirectory {
		return filepath.Join(l.Root, game)
	}
	return filepath.Join(l.Root, game+".zip")
}

// GameResult is the traversal's per-game outcome, surfaced for a front end
// that wants a summary beyond the report.Writer's line-oriented output.
type GameResult struct {
	Game    string
	Recheck []planner.RecheckSignal
	Err     error
}

// Walker drives one full run: every catalog game visited once, plus any
// recheck passes the planner's RecheckSignals request.
type Walker struct {
	Engine *engine.Engine
	Layout Layout
	Fixer  *planner.Fixer

	checked map[string]bool
}

// New constructs a Walker. fixer is expected to share e's Pools/Deletes/
// Catalog/Index/Report so that a single run's state is consistent across
// every game.
func New(e *engine.Engine, layout Layout, fixer *planner.Fixer) *Walker {
	return &Walker{Engine: e, Layout: layout, Fixer: fixer, checked: make(map[string]bool)}
}

// openAncestors opens (or reuses) the self/parent/grandparent archive
// handles for game, following CloneOf links up to two hops, per spec.md
// §4.2's clone/grand-clone model. A broken archive is quarantined and
// replaced with a fresh empty one rather than aborting the whole run
// (spec.md §4.9 Step A); a missing archive yields a nil handle, which the
// matcher and planner both treat as "nothing to offer/nothing to fix".
func (w *Walker) openAncestors(game catalog.Game) (matcher.Archives, error) {
	self, err := w.openOptional(game.Name, archive.LocationSelf)
	if err != nil {
		return matcher.Archives{}, err
	}

	var parent, grandparent archive.Handle
	if game.CloneOf != "" {
		parentGame, ok := w.Engine.Catalog.ReadGame(game.CloneOf)
		if ok {
			parent, err = w.openOptional(parentGame.Name, archive.LocationParent)
			if err != nil {
				return matcher.Archives{}, err
			}
			if parentGame.CloneOf != "" {
				if _, ok := w.Engine.Catalog.ReadGame(parentGame.CloneOf); ok {
					grandparent, err = w.openOptional(parentGame.CloneOf, archive.LocationGrandparent)
					if err != nil {
						return matcher.Archives{}, err
					}
				} else {
					w.Engine.Logger.Warn(fmt.Errorf("game %s: grandparent %s not in catalog, ignoring link", game.Name, parentGame.CloneOf))
				}
			}
		} else {
			w.Engine.Logger.Warn(fmt.Errorf("game %s: parent %s not in catalog, ignoring link", game.Name, game.CloneOf))
		}
	}

	return matcher.Archives{Self: self, Parent: parent, Grandparent: grandparent}, nil
}

func (w *Walker) openOptional(game string, loc archive.Location) (archive.Handle, error) {
	path := w.Layout.ArchivePath(game)
	flags := archive.Flag(0)
	if loc == archive.LocationSelf {
		flags = archive.FlagCheckIntegrity
	}
	h, err := w.Engine.OpenArchive(path, loc, flags)
	if err != nil {
		if loc != archive.LocationSelf || errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		quarantined, qerr := w.Fixer.QuarantineAndRecreate(path, loc)
		if qerr != nil {
			return nil, qerr
		}
		w.Engine.Logger.Warn(fmt.Errorf("game %s: archive unreadable, quarantined: %w", game, err))
		return quarantined, nil
	}
	return h, nil
}

// VisitGame runs the matcher and planner for a single game and returns any
// recheck signals the planner produced.
func (w *Walker) VisitGame(name string) GameResult {
	g, ok := w.Engine.Catalog.ReadGame(name)
	if !ok {
		return GameResult{Game: name}
	}

	archives, err := w.openAncestors(g)
	if err != nil {
		return GameResult{Game: name, Err: err}
	}

	matchOpts := matcher.Options{
		Det:            w.Engine.Detector,
		Index:          w.Engine.Index,
		ResolveArchive: w.Engine.ResolveArchive,
	}
	result := matcher.Match(g.Files, archives, matchOpts)
	for _, warning := range result.Warnings {
		w.Engine.Logger.Warn(fmt.Errorf("game %s: %s", name, warning))
	}

	recheck, err := w.Fixer.FixGame(name, w.Layout.ArchivePath(name), g.Files, archives, result)
	return GameResult{Game: name, Recheck: recheck, Err: err}
}

// Run visits every game in the catalog's name list once, in lexical order
// for determinism, then drains the recheck worklist until it is empty
// (spec.md §4.10's fixpoint: a game whose needed file just appeared is
// revisited, and this can itself cascade).
func (w *Walker) Run(gameNames []string) []GameResult {
	ordered := append([]string(nil), gameNames...)
	sort.Strings(ordered)

	var results []GameResult
	var worklist []string
	for _, name := range ordered {
		worklist = append(worklist, name)
	}

	const maxRechecks = 10000 // defends against a pathological catalog cycle; spec.md §4.10 expects convergence well before this
	rechecks := 0

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]

		res := w.VisitGame(name)
		results = append(results, res)
		if res.Err != nil {
			continue
		}

		for _, sig := range res.Recheck {
			if sig.Game == "" || sig.Game == name {
				continue
			}
			if rechecks >= maxRechecks {
				w.Engine.Logger.Warn(fmt.Errorf("recheck limit reached, dropping further signals"))
				break
			}
			rechecks++
			worklist = append(worklist, sig.Game)
		}
	}

	if w.Engine.Options.FixDo {
		if err := w.Engine.Pools.Commit(); err != nil {
			w.Engine.Logger.Error(fmt.Errorf("committing needed pool: %w", err))
		} else if err := w.Engine.Deletes.Execute(w.applyDeleteBatch); err != nil {
			w.Engine.Logger.Error(fmt.Errorf("executing delete list: %w", err))
		}
	}

	return results
}

// applyDeleteBatch is deletelist.Lists.Execute's apply callback: it reopens
// (or reuses) the batch's archive, deletes every named member still present,
// and commits once. A name already gone from the archive is not an error.
// Entries are keyed by name rather than the member-slice index they had when
// pushed, since FixGame's own self.Commit may already have run and
// renumbered the archive's live members by the time Execute reaches them.
func (w *Walker) applyDeleteBatch(b deletelist.Batch) error {
	h := w.Engine.ResolveArchive(b.Archive)
	if h == nil {
		var err error
		h, err = w.Fixer.Opener(b.Archive, archive.LocationSelf, 0)
		if err != nil {
			return fmt.Errorf("reopening %s for deferred delete: %w", b.Archive, err)
		}
	}

	for _, e := range b.Entries {
		idx, ok := h.FileIndexByName(e.Name)
		if !ok {
			continue
		}
		if err := h.Delete(idx); err != nil {
			return fmt.Errorf("%s: deleting %s (%s): %w", b.Archive, e.Name, e.Kind, err)
		}
	}
	return h.Commit()
}
