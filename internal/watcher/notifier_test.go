package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
)

func newTestNotifier(t *testing.T, opts ...NotifierOption) (*Notifier, *Registry, *fakeStream) {
	t.Helper()
	stream := newFakeStream()
	reg := NewRegistry(logger.Discard(), stream)
	n := NewNotifier(logger.Discard(), stream, reg, opts...)
	return n, reg, stream
}

func (n *Notifier) drain(t *testing.T) {
	t.Helper()
	ready, err := n.CheckEvents()
	require.NoError(t, err)
	if ready {
		require.NoError(t, n.ReadEvents())
	}
	require.NoError(t, n.ProcessEvents())
}

func TestNotifierDeliversEnrichedEvents(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink))
	dir := t.TempDir()
	wd, err := reg.AddWatch(dir, inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Create, 0, "a.txt")
	stream.inject(wd, inotify.CloseWrite, 0, "a.txt")
	n.drain(t)

	require.Len(t, sink.events, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), sink.events[0].Pathname)
	assert.Equal(t, "IN_CREATE", sink.events[0].MaskName)
	assert.Equal(t, "IN_CLOSE_WRITE", sink.events[1].MaskName)
}

func TestNotifierPrefersWatchChain(t *testing.T) {
	def := &recordHandler{}
	own := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(def))
	dir := t.TempDir()
	wd, err := reg.AddWatch(dir, inotify.AllEvents, AddOptions{Handler: NewChain(own)})
	require.NoError(t, err)

	stream.inject(wd, inotify.Modify, 0, "f")
	n.drain(t)

	assert.Len(t, own.events, 1)
	assert.Empty(t, def.events)
}

func TestNotifierDropsUnknownWd(t *testing.T) {
	sink := &recordHandler{}
	n, _, stream := newTestNotifier(t, WithDefaultHandler(sink))

	stream.inject(999, inotify.Modify, 0, "ghost")
	n.drain(t)

	assert.Empty(t, sink.events)
}

func TestNotifierNeverDropsOverflow(t *testing.T) {
	sink := &recordHandler{}
	n, _, stream := newTestNotifier(t, WithDefaultHandler(sink))

	// Overflow records carry wd -1, which matches no watch.
	stream.inject(-1, inotify.QueueOverflow, 0, "")
	n.drain(t)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "IN_Q_OVERFLOW", sink.events[0].MaskName)
}

func TestNotifierCoalescing(t *testing.T) {
	for _, tc := range []struct {
		name     string
		coalesce bool
		want     int
	}{
		{"enabled", true, 1},
		{"disabled", false, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordHandler{}
			n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink), WithCoalescing(tc.coalesce))
			wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
			require.NoError(t, err)

			for range 3 {
				stream.inject(wd, inotify.Modify, 0, "hot.log")
			}
			n.drain(t)

			assert.Len(t, sink.events, tc.want)
		})
	}
}

func TestNotifierCoalescingResetsBetweenDrains(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink), WithCoalescing(true))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Modify, 0, "f")
	n.drain(t)
	stream.inject(wd, inotify.Modify, 0, "f")
	n.drain(t)

	assert.Len(t, sink.events, 2)
}

func TestNotifierThresholdDefersSmallDrains(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink), WithThreshold(1<<20))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Modify, 0, "f")
	n.drain(t)

	assert.Empty(t, sink.events, "below-threshold data must stay queued in the kernel")
}

func TestNotifierFatalOnUnknownCategory(t *testing.T) {
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(&recordHandler{}))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Mask(0x40000000), 0, "")

	ready, err := n.CheckEvents()
	require.NoError(t, err)
	require.True(t, ready)
	require.NoError(t, n.ReadEvents())

	err = n.ProcessEvents()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownCategory))
}

func TestNotifierConsumesDispatchedOnFatal(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Modify, 0, "f")
	stream.inject(wd, inotify.Mask(0x40000000), 0, "")

	require.NoError(t, n.ReadEvents())
	err = n.ProcessEvents()
	require.Error(t, err)
	require.Len(t, sink.events, 1)

	// The bad record was consumed with the batch; a retry must neither
	// redeliver the dispatched event nor hit the bad record again.
	require.NoError(t, n.ProcessEvents())
	assert.Len(t, sink.events, 1)
}

func TestNotifierHandleReadLatchesOnFatal(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	stream.inject(wd, inotify.Modify, 0, "f")
	stream.inject(wd, inotify.Mask(0x40000000), 0, "")
	n.HandleRead()
	require.Len(t, sink.events, 1)

	stream.inject(wd, inotify.Modify, 0, "g")
	n.HandleRead()
	assert.Len(t, sink.events, 1, "a failed notifier must stop handling readiness callbacks")
}

func TestNotifierBackfillSameDrain(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink))
	dir := t.TempDir()
	wd, err := reg.AddWatch(dir, inotify.AllEvents, AddOptions{AutoAdd: true})
	require.NoError(t, err)

	// mkdir -p a/b happened before any event was processed.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	stream.inject(wd, inotify.Create|inotify.IsDir, 0, "a")
	n.drain(t)

	var pathnames []string
	for _, ev := range sink.events {
		pathnames = append(pathnames, ev.Pathname)
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "a"),
		filepath.Join(dir, "a", "b"),
	}, pathnames, "synthesized creations are dispatched in the same pass")

	_, ok := reg.WdByPath(filepath.Join(dir, "a", "b"))
	assert.True(t, ok)
}

func TestNotifierLoopCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	iterations := 0
	n, _, _ := newTestNotifier(t,
		WithDefaultHandler(&recordHandler{}),
		WithLoopCallback(func() {
			if iterations++; iterations == 3 {
				cancel()
			}
		}),
	)

	err := n.Loop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, iterations)
}

func TestNotifierStartStop(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink), WithTimeout(time.Millisecond))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	n.Start()
	stream.inject(wd, inotify.Create, 0, "x")

	assert.Eventually(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return len(stream.buf) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, n.Stop())
	assert.True(t, stream.closed)
}

type stubReactor struct {
	registered   map[int]func()
	unregistered []int
}

func (r *stubReactor) Register(fd int, fn func()) error {
	if r.registered == nil {
		r.registered = make(map[int]func())
	}
	r.registered[fd] = fn
	return nil
}

func (r *stubReactor) Unregister(fd int) error {
	r.unregistered = append(r.unregistered, fd)
	delete(r.registered, fd)
	return nil
}

func TestNotifierReactorAttach(t *testing.T) {
	sink := &recordHandler{}
	n, reg, stream := newTestNotifier(t, WithDefaultHandler(sink))
	wd, err := reg.AddWatch(t.TempDir(), inotify.AllEvents, AddOptions{})
	require.NoError(t, err)

	r := &stubReactor{}
	require.NoError(t, n.Attach(r))

	err = n.Attach(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errors.Error{Code: errors.CodeAlreadyAttached}))

	stream.inject(wd, inotify.Modify, 0, "f")
	r.registered[stream.Fd()]()
	assert.Len(t, sink.events, 1)

	require.NoError(t, n.Detach())
	require.NoError(t, n.Detach(), "second detach is a no-op")
	assert.Equal(t, []int{stream.Fd()}, r.unregistered)
}
