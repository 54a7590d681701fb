package watcher

import (
	"path/filepath"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
)

// WatchTransientFile monitors a file that may not exist yet, or that is
// repeatedly replaced, such as a pidfile or a lockfile. Watching the file
// itself would break on every replacement, so the parent directory is
// watched instead and events are narrowed to the one basename. Creation
// and deletion are always included so the handler sees the file appear
// and vanish.
//
// The parent directory must not already carry a watch: registration fails
// with DUPLICATE_WATCH rather than silently widening or narrowing an
// existing watch's handler.
func (r *Registry) WatchTransientFile(filename string, mask inotify.Mask, h Handler) (int32, error) {
	filename = filepath.Clean(filename)
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return -1, errors.InvalidArgumentf("not a file path: %q", filename)
	}

	only := OnlyIf(func(e *Event) bool { return e.Name == base })
	return r.AddWatch(dir, mask|inotify.Create|inotify.Delete, AddOptions{
		Handler: NewChain(only, h),
	})
}
