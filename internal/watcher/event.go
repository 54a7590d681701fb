package watcher

import (
	"fmt"
	"strings"

	"github.com/pathwatch/pathwatch/internal/inotify"
)

// Event is the enriched, immutable record handed to user handlers: the raw
// kernel fields plus everything the pipeline can infer about them.
type Event struct {
	// Wd is the watch descriptor the event was raised against.
	Wd int32

	// Mask is the raw event mask (one category, possibly with IN_ISDIR).
	Mask inotify.Mask

	// Cookie correlates the two halves of a rename pair; zero otherwise.
	Cookie uint32

	// Name is the basename of the child the event targets, or empty when
	// the event targets the watched item itself.
	Name string

	// Path is the watched directory's path at dispatch time.
	Path string

	// Pathname is the absolute concatenation of Path and Name.
	Pathname string

	// Dir reports whether the event occurred against a directory.
	Dir bool

	// MaskName is the human-readable event name, e.g. "IN_CREATE|IN_ISDIR".
	MaskName string

	// SrcPathname is the origin of a rename, set only on the destination
	// half of a correlated pair. Empty when the rename's source is outside
	// every watched tree.
	SrcPathname string
}

// String renders the event for logs and the command-line printer.
func (e *Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<Event mask=%s", e.MaskName)
	if e.Pathname != "" {
		fmt.Fprintf(&b, " pathname=%s", e.Pathname)
	}
	if e.Cookie != 0 {
		fmt.Fprintf(&b, " cookie=%d", e.Cookie)
	}
	if e.SrcPathname != "" {
		fmt.Fprintf(&b, " src_pathname=%s", e.SrcPathname)
	}
	if e.Dir {
		b.WriteString(" dir=true")
	}
	b.WriteString(">")
	return b.String()
}
