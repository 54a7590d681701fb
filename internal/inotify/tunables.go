package inotify

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pathwatch/pathwatch/internal/errors"
)

// Tunables is a small capability object over the kernel's inotify limits,
// normally /proc/sys/fs/inotify. Constructed once and passed down instead
// of read through ambient globals.
type Tunables struct {
	root string
}

// NewTunables returns the production attribute store.
func NewTunables() Tunables {
	return Tunables{root: "/proc/sys/fs/inotify"}
}

// NewTunablesAt returns an attribute store rooted at dir. Used by tests.
func NewTunablesAt(dir string) Tunables {
	return Tunables{root: dir}
}

// MaxQueuedEvents returns the kernel event queue capacity; past it the
// stream delivers IN_Q_OVERFLOW.
func (t Tunables) MaxQueuedEvents() (int, error) {
	return t.read("max_queued_events")
}

// MaxUserInstances returns the per-user limit on inotify instances.
func (t Tunables) MaxUserInstances() (int, error) {
	return t.read("max_user_instances")
}

// MaxUserWatches returns the per-user limit on watches; once reached,
// adding a watch fails with WATCH_LIMIT.
func (t Tunables) MaxUserWatches() (int, error) {
	return t.read("max_user_watches")
}

// SetMaxQueuedEvents adjusts the kernel event queue capacity.
func (t Tunables) SetMaxQueuedEvents(n int) error {
	return t.write("max_queued_events", n)
}

// SetMaxUserWatches adjusts the per-user watch limit.
func (t Tunables) SetMaxUserWatches(n int) error {
	return t.write("max_user_watches", n)
}

func (t Tunables) read(name string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(t.root, name))
	if err != nil {
		return 0, errors.Primitive("reading inotify tunable "+name, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errors.Primitive("parsing inotify tunable "+name, err)
	}
	return n, nil
}

func (t Tunables) write(name string, n int) error {
	path := filepath.Join(t.root, name)
	if err := os.WriteFile(path, []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return errors.Primitive("writing inotify tunable "+name, err)
	}
	return nil
}
