// Package watcher implements the watch registry, event augmentation and
// dispatch pipeline over the kernel notification stream.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
	"github.com/pathwatch/pathwatch/internal/resolve"
)

// Watch is one entry per actively monitored filesystem path.
type Watch struct {
	// Wd is the kernel watch descriptor; unique while the watch is live.
	Wd int32

	// Path is the normalized path currently associated with the
	// descriptor. It is rewritten in place when the watched item itself
	// moves.
	Path string

	// Mask selects the event categories of interest.
	Mask inotify.Mask

	// Handler is the chain events on this watch dispatch to. Empty means
	// the notifier's default chain.
	Handler Chain

	// AutoAdd registers newly created subdirectories with the same mask,
	// handler and exclude filter.
	AutoAdd bool

	// Exclude is consulted before auto-adding new watches.
	Exclude resolve.Filter

	// IsDir is cached at creation time; the kernel omits the directory
	// flag on the self-referential event categories.
	IsDir bool

	// PathUntrusted marks a watch whose item was moved to an unknown
	// destination: Path may no longer match kernel reality.
	PathUntrusted bool
}

// Registry owns the mapping from watch descriptor to watch metadata. It is
// the single source of truth: no other component keeps a copy of wd→path.
// Every add and remove issues exactly one corresponding kernel call.
type Registry struct {
	log     *logger.Logger
	stream  inotify.Stream
	exclude resolve.Filter

	mu      sync.RWMutex
	watches map[int32]*Watch
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExcludeFilter installs a default exclusion filter applied by every
// Add that doesn't carry its own.
func WithExcludeFilter(f resolve.Filter) RegistryOption {
	return func(r *Registry) { r.exclude = f }
}

// NewRegistry creates a registry over the given kernel stream.
func NewRegistry(log *logger.Logger, stream inotify.Stream, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:     log,
		stream:  stream,
		exclude: resolve.NoExclude,
		watches: make(map[int32]*Watch),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddOptions carries the per-call knobs of Add and AddWatch.
type AddOptions struct {
	// Handler is the chain events on the new watches dispatch to.
	Handler Chain

	// Recursive expands directories into their whole subtree.
	Recursive bool

	// Glob applies pattern expansion to the requested paths.
	Glob bool

	// AutoAdd propagates the watch to subdirectories created later.
	AutoAdd bool

	// Exclude overrides the registry's default exclusion filter.
	Exclude resolve.Filter
}

// Result is the outcome of registering one concrete path.
type Result struct {
	// Wd is the watch descriptor, valid only when Err is nil and the
	// path was not excluded.
	Wd int32

	// Excluded is set when the exclusion filter rejected the path.
	Excluded bool

	// Err is the per-path registration failure, if any.
	Err error
}

// OK reports whether the path is now watched.
func (r Result) OK() bool { return r.Err == nil && !r.Excluded }

// Results maps each concrete path of a batch registration to its outcome.
type Results map[string]Result

// Add registers watches for the requested paths after resolver expansion
// (globbing, recursion, exclusion). Per-path failures land in the returned
// map rather than aborting the batch, with one exception: when the kernel
// reports watch-limit exhaustion there is no point trying the remaining
// paths, so Add stops immediately and returns the partial results together
// with the limit error.
func (r *Registry) Add(paths []string, mask inotify.Mask, opts AddOptions) (Results, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = r.exclude
	}

	resolutions, err := resolve.Expand(paths, resolve.Options{
		Recursive: opts.Recursive,
		Glob:      opts.Glob,
		Exclude:   exclude,
	})
	if err != nil {
		return nil, err
	}

	results := make(Results, len(resolutions))
	for _, res := range resolutions {
		if res.Status == resolve.Excluded {
			results[res.Path] = Result{Excluded: true}
			continue
		}

		wd, err := r.AddWatch(res.Path, mask, AddOptions{
			Handler: opts.Handler,
			AutoAdd: opts.AutoAdd,
			Exclude: exclude,
		})
		if err != nil {
			results[res.Path] = Result{Err: err}
			if errors.Is(err, errors.ErrWatchLimit) {
				return results, err
			}
			continue
		}
		results[res.Path] = Result{Wd: wd}
	}
	return results, nil
}

// AddWatch registers a single concrete path. It fails with DUPLICATE_WATCH
// when the path is already registered (callers wanting to change an
// existing watch should Update it) and with PRIMITIVE or WATCH_LIMIT when
// the kernel call fails.
func (r *Registry) AddWatch(path string, mask inotify.Mask, opts AddOptions) (int32, error) {
	path = filepath.Clean(path)

	if _, ok := r.WdByPath(path); ok {
		return -1, errors.DuplicateWatch("path already watched: " + path)
	}

	wd, err := r.stream.AddWatch(path, mask)
	if err != nil {
		return -1, err
	}

	exclude := opts.Exclude
	if exclude == nil {
		exclude = r.exclude
	}

	info, statErr := os.Stat(path)
	w := &Watch{
		Wd:      wd,
		Path:    path,
		Mask:    mask,
		Handler: opts.Handler,
		AutoAdd: opts.AutoAdd,
		Exclude: exclude,
		IsDir:   statErr == nil && info.IsDir(),
	}

	r.mu.Lock()
	r.watches[wd] = w
	r.mu.Unlock()

	r.log.Debug("watch added", "path", path, "wd", wd, "mask", mask.String())
	return wd, nil
}

// Update changes the mask, handler chain or auto-add flag of an existing
// watch. With recursive set, the change also applies to every watch whose
// path is nested under the target's. Fails with UNKNOWN_HANDLE when wd is
// not registered.
func (r *Registry) Update(wd int32, upd Update, recursive bool) error {
	if _, ok := r.Get(wd); !ok {
		return errors.UnknownHandlef("update: unknown wd %d", wd)
	}

	wds := []int32{wd}
	if recursive {
		wds = r.subtree(wd)
	}

	var errs []error
	for _, awd := range wds {
		if err := r.updateOne(awd, upd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Update describes the mutable attributes of a watch. Nil fields are left
// unchanged.
type Update struct {
	Mask    *inotify.Mask
	Handler Chain
	AutoAdd *bool
}

func (r *Registry) updateOne(wd int32, upd Update) error {
	r.mu.Lock()
	w, ok := r.watches[wd]
	if !ok {
		r.mu.Unlock()
		return errors.UnknownHandlef("update: unknown wd %d", wd)
	}
	path := w.Path
	r.mu.Unlock()

	if upd.Mask != nil {
		// Re-adding an already watched path updates its mask in place;
		// the kernel returns the same descriptor.
		newWd, err := r.stream.AddWatch(path, *upd.Mask)
		if err != nil {
			return err
		}
		if newWd != wd {
			return errors.Primitivef(nil, "mask update moved wd %d to %d", wd, newWd)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok = r.watches[wd]
	if !ok {
		return errors.UnknownHandlef("update: wd %d vanished", wd)
	}
	if upd.Mask != nil {
		w.Mask = *upd.Mask
	}
	if upd.Handler != nil {
		w.Handler = upd.Handler
	}
	if upd.AutoAdd != nil {
		w.AutoAdd = *upd.AutoAdd
	}
	r.log.Debug("watch updated", "path", w.Path, "wd", wd)
	return nil
}

// Remove unregisters a watch. With recursive set, it also unregisters
// every watch whose path is equal to or nested under the target's path
// (path nesting, symlinks are not followed). Fails with UNKNOWN_HANDLE
// when wd is not registered.
func (r *Registry) Remove(wd int32, recursive bool) error {
	if _, ok := r.Get(wd); !ok {
		return errors.UnknownHandlef("remove: unknown wd %d", wd)
	}

	wds := []int32{wd}
	if recursive {
		wds = r.subtree(wd)
	}

	var errs []error
	for _, awd := range wds {
		if err := r.stream.RemoveWatch(awd); err != nil {
			errs = append(errs, err)
			continue
		}
		r.mu.Lock()
		delete(r.watches, awd)
		r.mu.Unlock()
		r.log.Debug("watch removed", "wd", awd)
	}
	return errors.Join(errs...)
}

// WdByPath returns the watch descriptor registered for path.
func (r *Registry) WdByPath(path string) (int32, bool) {
	path = filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for wd, w := range r.watches {
		if w.Path == path {
			return wd, true
		}
	}
	return -1, false
}

// Get returns a copy of the watch registered under wd.
func (r *Registry) Get(wd int32) (Watch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.watches[wd]
	if !ok {
		return Watch{}, false
	}
	return *w, true
}

// Len returns the number of live watches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watches)
}

// subtree returns wd plus every descriptor whose path is nested under
// wd's path. The root descriptor comes first.
func (r *Registry) subtree(wd int32) []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root, ok := r.watches[wd]
	if !ok {
		return nil
	}

	out := []int32{wd}
	prefix := root.Path + string(filepath.Separator)
	for awd, w := range r.watches {
		if awd != wd && strings.HasPrefix(w.Path, prefix) {
			out = append(out, awd)
		}
	}
	return out
}

// forget drops a watch from the registry without a kernel call. Used when
// the kernel itself has invalidated the descriptor (IN_IGNORED).
func (r *Registry) forget(wd int32) {
	r.mu.Lock()
	delete(r.watches, wd)
	r.mu.Unlock()
}

// rewritePrefix follows a watched item that moved from oldPath to newPath:
// the watch itself gets the new path, and every other watch nested under
// the old path is re-rooted under the new one by prefix substitution. No
// filesystem re-scan happens; the kernel descriptors are unaffected.
func (r *Registry) rewritePrefix(wd int32, oldPath, newPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.watches[wd]; ok {
		w.Path = newPath
	}

	prefix := oldPath + string(filepath.Separator)
	for awd, w := range r.watches {
		if awd != wd && strings.HasPrefix(w.Path, prefix) {
			w.Path = filepath.Join(newPath, w.Path[len(prefix):])
		}
	}
}

// markUntrusted flags a watch whose path can no longer be verified.
func (r *Registry) markUntrusted(wd int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watches[wd]; ok {
		w.PathUntrusted = true
	}
}

// snapshotChain returns the handler chain of wd at dispatch time.
func (r *Registry) snapshotChain(wd int32) (Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.watches[wd]
	if !ok {
		return nil, false
	}
	return w.Handler, true
}
