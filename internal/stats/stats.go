// Package stats provides a chain handler that tallies dispatched events
// per category, for live introspection and end-of-run summaries.
package stats

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/watcher"
)

// barWidth caps the histogram bar of the busiest category.
const barWidth = 40

// Counter tallies events by category name. Place it early in a handler
// chain; it never stops the chain, so the handlers behind it still run.
// Safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	counts  map[string]uint64
	total   uint64
	started time.Time
	last    time.Time
}

// New creates a counter. The elapsed clock starts now.
func New() *Counter {
	return &Counter{
		counts:  make(map[string]uint64),
		started: time.Now(),
	}
}

// ProcessDefault counts the event and passes it on.
func (c *Counter) ProcessDefault(e *watcher.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for part := range strings.SplitSeq(e.MaskName, "|") {
		if part == "" || part == "IN_ISDIR" {
			continue
		}
		c.counts[part]++
	}
	c.total++
	c.last = time.Now()
	return false
}

// Snapshot is a point-in-time copy of the tallies.
type Snapshot struct {
	// Counts maps category name to occurrences.
	Counts map[string]uint64

	// Total is the number of events counted, compound names counted once.
	Total uint64

	// Elapsed spans from counter creation to the last counted event, or
	// to now when nothing arrived yet.
	Elapsed time.Duration
}

// Snapshot copies the current tallies.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]uint64, len(c.counts))
	for name, n := range c.counts {
		counts[name] = n
	}

	end := c.last
	if end.IsZero() {
		end = time.Now()
	}
	return Snapshot{
		Counts:  counts,
		Total:   c.total,
		Elapsed: end.Sub(c.started).Round(time.Millisecond),
	}
}

// String renders the tallies as a small histogram, one category per line,
// busiest first.
func (c *Counter) String() string {
	s := c.Snapshot()
	if s.Total == 0 {
		return fmt.Sprintf("no events in %s", s.Elapsed)
	}

	names := make([]string, 0, len(s.Counts))
	var peak uint64
	for name, n := range s.Counts {
		names = append(names, name)
		if n > peak {
			peak = n
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Counts[names[i]] != s.Counts[names[j]] {
			return s.Counts[names[i]] > s.Counts[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d events in %s\n", s.Total, s.Elapsed)
	for _, name := range names {
		n := s.Counts[name]
		bar := int(n * barWidth / peak)
		if bar == 0 {
			bar = 1
		}
		fmt.Fprintf(&b, "%-22s %6d %s\n", name, n, strings.Repeat("@", bar))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Dump writes the rendered tallies to a new file. Refuses to overwrite
// an existing one.
func (c *Counter) Dump(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return errors.InvalidArgumentf("cannot dump stats to %q: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(c.String() + "\n"); err != nil {
		return errors.Primitive("writing stats failed", err)
	}
	return nil
}
