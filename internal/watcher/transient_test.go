package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
)

func TestWatchTransientFile(t *testing.T) {
	stream := newFakeStream()
	reg := NewRegistry(logger.Discard(), stream)
	n := NewNotifier(logger.Discard(), stream, reg)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "daemon.pid")

	sink := &recordHandler{}
	wd, err := reg.WatchTransientFile(pidfile, inotify.CloseWrite, sink)
	require.NoError(t, err)

	w, ok := reg.Get(wd)
	require.True(t, ok)
	assert.Equal(t, dir, w.Path, "the parent directory carries the watch")
	assert.Equal(t, inotify.CloseWrite|inotify.Create|inotify.Delete, w.Mask)

	stream.inject(wd, inotify.Create, 0, "daemon.pid")
	stream.inject(wd, inotify.Create, 0, "unrelated.tmp")
	stream.inject(wd, inotify.Delete, 0, "daemon.pid")
	n.drain(t)

	require.Len(t, sink.events, 2)
	assert.Equal(t, pidfile, sink.events[0].Pathname)
	assert.Equal(t, pidfile, sink.events[1].Pathname)
}

func TestWatchTransientFileParentAlreadyWatched(t *testing.T) {
	stream := newFakeStream()
	reg := NewRegistry(logger.Discard(), stream)
	dir := t.TempDir()

	_, err := reg.AddWatch(dir, inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	_, err = reg.WatchTransientFile(filepath.Join(dir, "x.lock"), inotify.Modify, &recordHandler{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateWatch))
}
