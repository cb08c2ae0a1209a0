// Package engine is the context object spec.md §9 Design Notes calls for:
// it threads the cache registry, global file index, delete lists, staging
// pools, and options through traversal, matcher, and planner explicitly,
// replacing the original implementation's file-scope globals so that
// independent fixtures can be built in tests.
package engine

import (
	"path/filepath"
	"sync"

	"github.com/nih-at/ckmame-sub001/pkg/archive"
	"github.com/nih-at/ckmame-sub001/pkg/cache"
	"github.com/nih-at/ckmame-sub001/pkg/catalog"
	"github.com/nih-at/ckmame-sub001/pkg/deletelist"
	"github.com/nih-at/ckmame-sub001/pkg/detector"
	"github.com/nih-at/ckmame-sub001/pkg/fileindex"
	"github.com/nih-at/ckmame-sub001/pkg/planner"
	"github.com/nih-at/ckmame-sub001/pkg/report"
	"github.com/nih-at/ckmame-sub001/pkg/rlog"
	"github.com/nih-at/ckmame-sub001/pkg/staging"
)

// Options mirrors spec.md §6's configuration table. A front end (CLI,
// config-file loader) is responsible for producing one of these; no
// parsing lives in the core (spec's Non-goals).
type Options struct {
	FixDo           bool
	MoveUnknown     bool
	MoveLong        bool
	DeleteDuplicate bool
	DeleteExtra     bool
	CompleteOnly    bool
	IgnoreUnknown   bool
	CheckIntegrity  bool
	RomsUnzipped    bool
}

func (o Options) plannerOptions() planner.Options {
	return planner.Options{
		FixDo:           o.FixDo,
		MoveUnknown:     o.MoveUnknown,
		MoveLong:        o.MoveLong,
		DeleteDuplicate: o.DeleteDuplicate,
		DeleteExtra:     o.DeleteExtra,
		CompleteOnly:    o.CompleteOnly,
		IgnoreUnknown:   o.IgnoreUnknown,
	}
}

func (o Options) archiveKind() archive.Kind {
	if o.RomsUnzipped {
		return archive.KindDirectory
	}
	return archive.KindZip
}

// cacheRegistry is the process-global-equivalent of spec.md §4.5/§5's
// "caches are owned by a process-global registry keyed by root directory;
// only one handle per root is opened" — modeled here as a field on Engine
// instead of an actual package-level global, per spec §9's instruction to
// consolidate global state into an explicit context object.
type cacheRegistry struct {
	mu     sync.Mutex
	stores map[string]*cache.Store
}

func newCacheRegistry() *cacheRegistry {
	return &cacheRegistry{stores: make(map[string]*cache.Store)}
}

func (r *cacheRegistry) forRoot(root string) (*cache.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[root]; ok {
		return s, nil
	}
	path := filepath.Join(root, ".ckmame-cache")
	s, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	r.stores[root] = s
	return s, nil
}

func (r *cacheRegistry) flushAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stores {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Engine bundles every piece of cross-game state a verification/repair run
// needs, constructed once per run.
type Engine struct {
	Options  Options
	Catalog  catalog.Catalog
	Detector *detector.Detector

	Index   *fileindex.Index
	Deletes *deletelist.Lists
	Pools   *staging.Pools
	Report  *report.Writer
	Logger  *rlog.Logger

	caches *cacheRegistry

	mu       sync.Mutex
	archives map[string]archive.Handle
}

// New constructs an Engine for one run. neededRoot is the well-known
// needed/ pool directory; reportWriter receives the diagnostic lines of
// spec.md §6.
func New(opts Options, cat catalog.Catalog, det *detector.Detector, neededRoot string, rep *report.Writer) *Engine {
	return &Engine{
		Options:  opts,
		Catalog:  cat,
		Detector: det,
		Index:    fileindex.New(),
		Deletes:  deletelist.New(),
		Pools:    staging.NewPools(neededRoot, opts.archiveKind()),
		Report:   rep,
		Logger:   rlog.RootLogger.Sublogger("ckmame"),
		caches:   newCacheRegistry(),
		archives: make(map[string]archive.Handle),
	}
}

// CacheFor returns the side-car cache Store for the ROM root containing
// path, opening it on first request (spec §5 "only one handle per root").
func (e *Engine) CacheFor(root string) (*cache.Store, error) {
	return e.caches.forRoot(root)
}

// FlushCaches persists every opened cache store, normally called once at
// the end of a run.
func (e *Engine) FlushCaches() error {
	return e.caches.flushAll()
}

// OpenArchive opens (or returns the already-open handle for) path, so that
// the same archive is never opened twice during one run (spec §5's shared-
// resource policy generalized from caches to archive handles, since both
// the matcher's global-index lookups and the traversal's ancestor-archive
// reuse need a single shared handle per path).
func (e *Engine) OpenArchive(path string, location archive.Location, flags archive.Flag) (archive.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.archives[path]; ok {
		return h, nil
	}
	h, err := staging.ForKind(e.archiveKindFor())(path, location, flags)
	if err != nil {
		return nil, err
	}
	e.archives[path] = h
	return h, nil
}

func (e *Engine) archiveKindFor() archive.Kind {
	return e.Options.archiveKind()
}

// ResolveArchive returns the already-open handle for path, or nil if it
// has not been opened this run. It is passed to matcher.Options.ResolveArchive
// so that global-index hits can be turned into a concrete source the
// planner can copy from.
func (e *Engine) ResolveArchive(path string) archive.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.archives[path]
}

// CloseArchive forgets path's open handle, e.g. after its subtree of the
// traversal has finished and every ancestor reference to it has closed.
func (e *Engine) CloseArchive(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.archives, path)
}

// PlannerOptions projects Options down to the planner package's subset.
func (e *Engine) PlannerOptions() planner.Options {
	return e.Options.plannerOptions()
}
