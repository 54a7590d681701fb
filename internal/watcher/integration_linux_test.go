//go:build linux

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
)

// Exercises the whole pipeline against the real kernel: registration,
// auto-add of a created directory, augmentation and dispatch.
func TestPipelineAgainstKernel(t *testing.T) {
	stream, err := inotify.OpenStream(logger.Discard())
	require.NoError(t, err)

	reg := NewRegistry(logger.Discard(), stream)
	sink := &recordHandler{}
	n := NewNotifier(logger.Discard(), stream, reg,
		WithDefaultHandler(sink),
		WithTimeout(2*time.Second),
	)
	t.Cleanup(func() { _ = stream.Close() })

	dir := t.TempDir()
	_, err = reg.AddWatch(dir, inotify.Create|inotify.Modify|inotify.CloseWrite, AddOptions{AutoAdd: true})
	require.NoError(t, err)

	seen := func(mask inotify.Mask, pathname string) bool {
		for _, ev := range sink.events {
			if ev.Mask&mask != 0 && ev.Pathname == pathname {
				return true
			}
		}
		return false
	}
	drainUntil := func(mask inotify.Mask, pathname string) {
		deadline := time.Now().Add(5 * time.Second)
		for !seen(mask, pathname) {
			require.True(t, time.Now().Before(deadline), "timed out, got %v", sink.events)
			ready, err := n.CheckEvents()
			require.NoError(t, err)
			if ready {
				require.NoError(t, n.ReadEvents())
			}
			require.NoError(t, n.ProcessEvents())
		}
	}

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Processing the mkdir auto-adds the watch on sub; only then is a
	// write inside it guaranteed to be observed.
	drainUntil(inotify.Create, sub)
	_, ok := reg.WdByPath(sub)
	require.True(t, ok, "created directory must have been auto-added")

	file := filepath.Join(sub, "data.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))
	drainUntil(inotify.CloseWrite, file)

	assert.True(t, seen(inotify.Create, file))
	assert.True(t, seen(inotify.Modify, file))
}
