// Package resolve expands requested path arguments into the concrete set
// of filesystem paths to watch: glob expansion, recursive directory
// walking and exclusion filtering.
package resolve

import (
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// Status says what the resolver decided about one path.
type Status int

const (
	// Include means the path should be registered.
	Include Status = iota
	// Excluded means the exclude filter rejected the path. Excluded
	// paths are reported, not silently dropped, so callers can audit
	// coverage.
	Excluded
)

// Resolution is one resolver verdict.
type Resolution struct {
	Path   string
	Status Status
}

// Options controls expansion.
type Options struct {
	// Recursive walks directories and yields every subdirectory.
	// Symlinks are never followed; a file or symlinked directory
	// resolves to itself.
	Recursive bool

	// Glob applies pattern expansion to each input path. Unlike shell
	// globbing, dotfile-prefixed entries are matched.
	Glob bool

	// Exclude, when set, filters expanded paths.
	Exclude Filter
}

// Expand turns the requested paths into resolutions, in input order, with
// subtree walks sorted lexically.
func Expand(paths []string, opts Options) ([]Resolution, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = NoExclude
	}

	var out []Resolution
	for _, path := range paths {
		expanded, err := expandGlob(path, opts.Glob)
		if err != nil {
			return nil, err
		}
		for _, apath := range expanded {
			for _, rpath := range walk(apath, opts.Recursive) {
				if exclude(rpath) {
					out = append(out, Resolution{Path: rpath, Status: Excluded})
				} else {
					out = append(out, Resolution{Path: rpath, Status: Include})
				}
			}
		}
	}
	return out, nil
}

func expandGlob(pattern string, doGlob bool) ([]string, error) {
	if !doGlob {
		return []string{pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// walk yields top and, when recursing, every subdirectory below it.
// Symlinks are not followed: a symlinked directory is yielded as itself,
// never expanded.
func walk(top string, recursive bool) []string {
	info, err := os.Lstat(top)
	if !recursive || err != nil || !info.IsDir() {
		return []string{top}
	}

	var (
		mu   sync.Mutex
		dirs []string
	)
	conf := &fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(conf, top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped; the kernel add will
			// surface a per-path error if the caller still wants them.
			return nil
		}
		if d.IsDir() {
			mu.Lock()
			dirs = append(dirs, path)
			mu.Unlock()
		}
		return nil
	})

	sort.Strings(dirs)
	return dirs
}
