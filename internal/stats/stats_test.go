package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/watcher"
)

func TestCounterTallies(t *testing.T) {
	c := New()

	for range 3 {
		c.ProcessDefault(&watcher.Event{MaskName: "IN_MODIFY"})
	}
	c.ProcessDefault(&watcher.Event{MaskName: "IN_CREATE|IN_ISDIR"})

	s := c.Snapshot()
	assert.Equal(t, uint64(4), s.Total)
	assert.Equal(t, uint64(3), s.Counts["IN_MODIFY"])
	assert.Equal(t, uint64(1), s.Counts["IN_CREATE"])
	assert.NotContains(t, s.Counts, "IN_ISDIR")
}

func TestCounterNeverStopsChain(t *testing.T) {
	c := New()
	assert.False(t, c.ProcessDefault(&watcher.Event{MaskName: "IN_OPEN"}))
}

func TestStringRendersHistogram(t *testing.T) {
	c := New()
	for range 5 {
		c.ProcessDefault(&watcher.Event{MaskName: "IN_MODIFY"})
	}
	c.ProcessDefault(&watcher.Event{MaskName: "IN_DELETE"})

	out := c.String()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "6 events")
	assert.Contains(t, lines[1], "IN_MODIFY")
	assert.Contains(t, lines[1], "@")
	assert.Contains(t, lines[2], "IN_DELETE")
}

func TestStringEmpty(t *testing.T) {
	assert.Contains(t, New().String(), "no events")
}

func TestDumpRefusesOverwrite(t *testing.T) {
	c := New()
	c.ProcessDefault(&watcher.Event{MaskName: "IN_OPEN"})

	path := filepath.Join(t.TempDir(), "stats.out")
	require.NoError(t, c.Dump(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "IN_OPEN")

	assert.Error(t, c.Dump(path))
}
