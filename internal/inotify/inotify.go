// Package inotify is the boundary to the kernel notification primitive.
// It owns the event mask vocabulary, the wire codec for the notification
// byte stream, the readable Stream abstraction and the sysctl-style
// tunables exposed by the kernel.
package inotify

import "time"

// RawEvent is one record decoded from the kernel stream. It contains only
// what the system provides and infers nothing.
type RawEvent struct {
	// Wd is the watch descriptor the event was raised against.
	Wd int32

	// Mask carries a single event category plus optional IN_ISDIR.
	Mask Mask

	// Cookie correlates the two halves of a rename pair; zero otherwise.
	Cookie uint32

	// Name is the basename of the child the event targets, or empty if
	// the event targets the watched item itself. Trailing NULs are
	// stripped at decode time.
	Name string
}

// Stream is the readable kernel notification channel. The production
// implementation wraps a real inotify file descriptor; tests substitute
// an in-memory fake.
type Stream interface {
	// Fd returns the underlying descriptor, for reactor registration.
	Fd() int

	// AddWatch registers path with the kernel and returns the watch
	// descriptor. Watch-limit exhaustion is reported distinctly from
	// other primitive failures.
	AddWatch(path string, mask Mask) (int32, error)

	// RemoveWatch unregisters a watch descriptor.
	RemoveWatch(wd int32) error

	// Pending returns the number of bytes currently available to read.
	Pending() (int, error)

	// Read fills buf with available stream bytes.
	Read(buf []byte) (int, error)

	// Wait blocks until the stream is readable, the timeout elapses or
	// Wake is called. A negative timeout blocks indefinitely. It returns
	// true only when stream bytes are readable.
	Wait(timeout time.Duration) (bool, error)

	// Wake unblocks a concurrent Wait. Safe to call from another
	// goroutine.
	Wake() error

	// Close releases the descriptor; every watch dies with it.
	Close() error
}
