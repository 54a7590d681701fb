package watcher

import (
	"sync"
	"time"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
)

// fakeStream is an in-memory Stream for tests. Events are injected as
// encoded records, exactly as the kernel would deliver them.
type fakeStream struct {
	mu      sync.Mutex
	nextWd  int32
	byPath  map[string]int32
	masks   map[int32]inotify.Mask
	removed []int32
	buf     []byte
	limit   int
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		byPath: make(map[string]int32),
		masks:  make(map[int32]inotify.Mask),
	}
}

func (f *fakeStream) Fd() int { return 42 }

func (f *fakeStream) AddWatch(path string, mask inotify.Mask) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if wd, ok := f.byPath[path]; ok {
		f.masks[wd] = mask
		return wd, nil
	}
	if f.limit > 0 && len(f.byPath) >= f.limit {
		return -1, errors.WatchLimit("watch limit exceeded")
	}
	f.nextWd++
	f.byPath[path] = f.nextWd
	f.masks[f.nextWd] = mask
	return f.nextWd, nil
}

func (f *fakeStream) RemoveWatch(wd int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, wd)
	for path, awd := range f.byPath {
		if awd == wd {
			delete(f.byPath, path)
		}
	}
	return nil
}

func (f *fakeStream) Pending() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf), nil
}

func (f *fakeStream) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(buf, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *fakeStream) Wait(time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf) > 0, nil
}

func (f *fakeStream) Wake() error { return nil }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) inject(wd int32, mask inotify.Mask, cookie uint32, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = inotify.Append(f.buf, inotify.RawEvent{Wd: wd, Mask: mask, Cookie: cookie, Name: name})
}

// recordHandler collects every event it sees.
type recordHandler struct {
	events []*Event
	stop   bool
}

func (h *recordHandler) ProcessDefault(e *Event) bool {
	h.events = append(h.events, e)
	return h.stop
}
