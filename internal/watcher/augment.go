package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
)

// moveEntryTTL bounds how long a rename half waits for its counterpart.
// Cross-tree renames never produce one, so unmatched entries are purged
// after each drain once they are this old.
const moveEntryTTL = time.Minute

type moveEntry struct {
	path string
	when time.Time
}

// augmenter turns raw kernel records into enriched events and performs
// the registry side effects the raw stream implies: auto-adding created
// and moved-in directories, correlating rename pairs and following moves
// of watched items. It runs only on the processing goroutine and is not
// safe for concurrent use.
type augmenter struct {
	log *logger.Logger
	reg *Registry

	// emit appends a synthesized raw record to the batch currently being
	// drained, so backfilled creations are processed in the same pass.
	emit func(inotify.RawEvent)

	// mvCookie maps a rename cookie to the source pathname until the
	// destination half arrives.
	mvCookie map[uint32]moveEntry

	// mvPath maps a rename's source pathname to its destination, consumed
	// by the late IN_MOVE_SELF of the moved item itself.
	mvPath map[string]moveEntry

	now func() time.Time
}

func newAugmenter(log *logger.Logger, reg *Registry, emit func(inotify.RawEvent)) *augmenter {
	return &augmenter{
		log:      log,
		reg:      reg,
		emit:     emit,
		mvCookie: make(map[uint32]moveEntry),
		mvPath:   make(map[string]moveEntry),
		now:      time.Now,
	}
}

// augment enriches one raw record. A record whose descriptor is not in the
// registry yields UNKNOWN_HANDLE and should be dropped by the caller;
// queue-overflow records carry no descriptor and always pass through.
func (a *augmenter) augment(raw inotify.RawEvent) (*Event, error) {
	if raw.Mask&inotify.QueueOverflow != 0 {
		a.log.WithError(errors.ErrQueueOverflowed).Error("events were lost, consider raising fs.inotify.max_queued_events")
		return &Event{
			Wd:       raw.Wd,
			Mask:     raw.Mask,
			MaskName: inotify.QueueOverflow.Name(),
		}, nil
	}

	w, ok := a.reg.Get(raw.Wd)
	if !ok {
		return nil, errors.UnknownHandlef("event for unknown wd %d, mask %s", raw.Wd, raw.Mask.String())
	}

	ev := &Event{
		Wd:       raw.Wd,
		Mask:     raw.Mask,
		Cookie:   raw.Cookie,
		Name:     raw.Name,
		Path:     w.Path,
		Pathname: w.Path,
		Dir:      raw.Mask&inotify.IsDir != 0,
		MaskName: raw.Mask.Name(),
	}
	if raw.Name != "" {
		ev.Pathname = filepath.Join(w.Path, raw.Name)
	} else if w.IsDir {
		// The kernel omits IN_ISDIR on events the watched item raises
		// about itself.
		ev.Dir = true
	}

	switch {
	case raw.Mask&inotify.Create != 0:
		if ev.Dir && w.AutoAdd {
			a.autoAdd(w, ev.Pathname)
		}
	case raw.Mask&inotify.MovedFrom != 0:
		a.mvCookie[raw.Cookie] = moveEntry{path: ev.Pathname, when: a.now()}
	case raw.Mask&inotify.MovedTo != 0:
		a.movedTo(w, ev)
	case raw.Mask&inotify.MoveSelf != 0:
		a.moveSelf(w, ev)
	}

	return ev, nil
}

// movedTo resolves the source of a rename destination. A directory moved
// in from outside every watched tree has no matching cookie; with auto-add
// its whole subtree is picked up, since none of it was being watched.
func (a *augmenter) movedTo(w Watch, ev *Event) {
	src, ok := a.mvCookie[ev.Cookie]
	if ok {
		ev.SrcPathname = src.path
		a.mvPath[src.path] = moveEntry{path: ev.Pathname, when: a.now()}
		return
	}

	if ev.Dir && w.AutoAdd && !w.Exclude(ev.Pathname) {
		results, err := a.reg.Add([]string{ev.Pathname}, w.Mask, AddOptions{
			Handler:   w.Handler,
			Recursive: true,
			AutoAdd:   true,
			Exclude:   w.Exclude,
		})
		if err != nil {
			a.log.WithError(err).Warn("failed to watch moved-in directory", "path", ev.Pathname)
			return
		}
		for path, res := range results {
			if res.Err != nil {
				a.log.WithError(res.Err).Warn("failed to watch moved-in directory", "path", path)
			}
		}
	}
}

// moveSelf follows the watched item to its new location when the rename
// destination is known, re-rooting every nested watch by prefix
// substitution. When the item moved somewhere outside every watched tree
// the recorded path is stale and the watch is flagged instead.
func (a *augmenter) moveSelf(w Watch, ev *Event) {
	dst, ok := a.mvPath[w.Path]
	if !ok {
		a.reg.markUntrusted(ev.Wd)
		err := errors.PathUntrustedf("watched item moved to an unknown destination: %s", w.Path)
		a.log.WithError(err).Warn("watch path no longer reliable", "wd", ev.Wd)
		return
	}
	a.reg.rewritePrefix(ev.Wd, w.Path, dst.path)
	a.log.Debug("watched item moved", "from", w.Path, "to", dst.path, "wd", ev.Wd)
}

// autoAdd registers a freshly created directory and synthesizes creation
// records for everything already inside it. Entries racing in between the
// mkdir and the watch registration would otherwise be missed entirely
// (mkdir -p creates the whole chain before any watch exists). Synthesized
// records join the current batch, so nested directories recurse naturally.
func (a *augmenter) autoAdd(w Watch, dir string) {
	if w.Exclude(dir) {
		return
	}

	wd, err := a.reg.AddWatch(dir, w.Mask, AddOptions{
		Handler: w.Handler,
		AutoAdd: true,
		Exclude: w.Exclude,
	})
	if err != nil {
		if errors.Is(err, errors.ErrDuplicateWatch) {
			return
		}
		a.log.WithError(err).Warn("failed to auto-add created directory", "path", dir)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		a.log.WithError(err).Warn("failed to scan auto-added directory", "path", dir)
		return
	}
	for _, entry := range entries {
		mask := inotify.Create
		if entry.IsDir() {
			mask |= inotify.IsDir
		}
		a.emit(inotify.RawEvent{Wd: wd, Mask: mask, Name: entry.Name()})
	}
}

// retire applies the side effects that must wait until after dispatch.
// IN_IGNORED means the kernel already dropped the descriptor, so the
// registry entry is discarded without a kernel call, but only once the
// handler has seen the final event for it.
func (a *augmenter) retire(ev *Event) {
	if ev.Mask&inotify.Ignored != 0 {
		a.reg.forget(ev.Wd)
		a.log.Debug("watch retired by kernel", "path", ev.Path, "wd", ev.Wd)
	}
}

// cleanup purges rename bookkeeping whose counterpart never arrived. Run
// after each drain pass.
func (a *augmenter) cleanup() {
	deadline := a.now().Add(-moveEntryTTL)
	for cookie, e := range a.mvCookie {
		if e.when.Before(deadline) {
			delete(a.mvCookie, cookie)
		}
	}
	for src, e := range a.mvPath {
		if e.when.Before(deadline) {
			delete(a.mvPath, src)
		}
	}
}
