package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
	"github.com/pathwatch/pathwatch/internal/logger"
)

// readBufSize comfortably fits several hundred events per read. A single
// record is 16 bytes plus the padded name.
const readBufSize = 64 * 1024

// Notifier drains the kernel stream and drives raw records through
// augmentation and dispatch. It supports three usage styles: a blocking
// Loop on the caller's goroutine, Start/Stop on an owned goroutine, and
// Attach to an external readiness reactor. The three check/read/process
// phases are also exposed individually for callers embedding the notifier
// in their own loop.
type Notifier struct {
	log    *logger.Logger
	stream inotify.Stream
	reg    *Registry
	def    Chain
	aug    *augmenter

	readFrequency time.Duration
	threshold     int
	timeout       time.Duration
	coalesce      bool
	onLoop        func()

	pending  []inotify.RawEvent
	seen     map[inotify.RawEvent]struct{}
	lastRead time.Time

	stopped  atomic.Bool
	failed   atomic.Bool
	wg       sync.WaitGroup
	reactor  Reactor
	attached bool
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithDefaultHandler sets the chain for watches that carry none of their
// own. Without it such events are silently discarded after augmentation.
func WithDefaultHandler(handlers ...Handler) NotifierOption {
	return func(n *Notifier) { n.def = NewChain(handlers...) }
}

// WithReadFrequency throttles stream reads to at most one per interval,
// letting the kernel batch bursts into fewer, larger drains.
func WithReadFrequency(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.readFrequency = d }
}

// WithThreshold defers reading until at least n bytes are pending.
func WithThreshold(n int) NotifierOption {
	return func(nf *Notifier) { nf.threshold = n }
}

// WithTimeout bounds how long one wait for readiness blocks. Negative
// blocks indefinitely, which is the default.
func WithTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.timeout = d }
}

// WithCoalescing drops raw records identical to one already pending in
// the same drain, taming storms like a tight write loop on one file.
func WithCoalescing(enabled bool) NotifierOption {
	return func(n *Notifier) { n.coalesce = enabled }
}

// WithLoopCallback runs fn once per Loop iteration, after processing.
// Useful for periodic housekeeping tied to the event loop's cadence.
func WithLoopCallback(fn func()) NotifierOption {
	return func(n *Notifier) { n.onLoop = fn }
}

// NewNotifier wires a notifier over the stream and registry.
func NewNotifier(log *logger.Logger, stream inotify.Stream, reg *Registry, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		log:     log,
		stream:  stream,
		reg:     reg,
		timeout: -1,
		seen:    make(map[inotify.RawEvent]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.aug = newAugmenter(log, reg, n.appendRaw)
	return n
}

// appendRaw queues one raw record for the current processing pass,
// deduplicating when coalescing is on.
func (n *Notifier) appendRaw(raw inotify.RawEvent) {
	if n.coalesce {
		if _, dup := n.seen[raw]; dup {
			return
		}
		n.seen[raw] = struct{}{}
	}
	n.pending = append(n.pending, raw)
}

// CheckEvents waits until the stream has data, the configured timeout
// elapses, or Wake interrupts the wait. It reports whether data is ready.
func (n *Notifier) CheckEvents() (bool, error) {
	return n.stream.Wait(n.timeout)
}

// ReadEvents drains the stream into the pending queue. With a threshold
// configured, drains smaller than it are left for a later pass; with a
// read frequency configured, the call sleeps out the residue of the
// interval first.
func (n *Notifier) ReadEvents() error {
	if n.readFrequency > 0 {
		if residual := n.readFrequency - time.Since(n.lastRead); residual > 0 {
			time.Sleep(residual)
		}
		n.lastRead = time.Now()
	}

	pending, err := n.stream.Pending()
	if err != nil {
		return err
	}
	if pending == 0 || pending < n.threshold {
		return nil
	}

	buf := make([]byte, max(pending, readBufSize))
	read, err := n.stream.Read(buf)
	if err != nil {
		return err
	}

	raws, err := inotify.Decode(buf[:read])
	if err != nil {
		return err
	}
	for _, raw := range raws {
		n.appendRaw(raw)
	}
	return nil
}

// ProcessEvents augments and dispatches every pending record. Records for
// descriptors no longer in the registry are logged and dropped, except
// queue overflow which always reaches the handlers. Augmentation may
// append synthesized records; they are processed in the same pass.
func (n *Notifier) ProcessEvents() error {
	// Indexed loop on purpose: augmentation grows the slice under us.
	for i := 0; i < len(n.pending); i++ {
		raw := n.pending[i]

		// The watch's chain is resolved before augmentation so a handler
		// swap racing this pass cannot split one event between chains.
		chain, _ := n.reg.snapshotChain(raw.Wd)
		if len(chain) == 0 {
			chain = n.def
		}

		ev, err := n.aug.augment(raw)
		if err != nil {
			n.log.WithError(err).Warn("dropping event for unregistered watch")
			continue
		}

		if err := chain.Dispatch(ev); err != nil {
			// Consume what was dispatched, and the poisoned record
			// itself, so a retry never delivers an event twice.
			for _, done := range n.pending[:i+1] {
				delete(n.seen, done)
			}
			n.pending = n.pending[i+1:]
			return err
		}
		n.aug.retire(ev)
	}

	n.pending = n.pending[:0]
	clear(n.seen)
	n.aug.cleanup()
	return nil
}

// step runs one full check/read/process cycle.
func (n *Notifier) step() error {
	ready, err := n.CheckEvents()
	if err != nil {
		return err
	}
	if ready {
		if err := n.ReadEvents(); err != nil {
			return err
		}
	}
	return n.ProcessEvents()
}

// Loop blocks on the caller's goroutine, processing events until the
// context is cancelled or a fatal stream error occurs. Recoverable
// per-event errors are logged and do not end the loop.
func (n *Notifier) Loop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		if err := n.stream.Wake(); err != nil {
			n.log.WithError(err).Warn("failed to interrupt event wait")
		}
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := n.step(); err != nil {
			return err
		}
		if n.onLoop != nil {
			n.onLoop()
		}
	}
}

// Start runs the processing loop on an owned goroutine.
func (n *Notifier) Start() {
	n.stopped.Store(false)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for !n.stopped.Load() {
			if err := n.step(); err != nil {
				n.log.WithError(err).Error("event loop stopped")
				return
			}
		}
	}()
}

// Stop ends a Start-ed loop, waits for it to drain and closes the stream.
func (n *Notifier) Stop() error {
	n.stopped.Store(true)
	if err := n.stream.Wake(); err != nil {
		n.log.WithError(err).Warn("failed to interrupt event wait")
	}
	n.wg.Wait()
	return n.stream.Close()
}

// Reactor is the minimal surface of an external readiness loop the
// notifier can plug into.
type Reactor interface {
	// Register arranges for fn to run whenever fd is readable.
	Register(fd int, fn func()) error
	// Unregister removes a previously registered descriptor.
	Unregister(fd int) error
}

// Attach registers the stream with an external reactor. The reactor calls
// HandleRead on readiness; the notifier never blocks the reactor's loop
// beyond one drain. Fails with ALREADY_ATTACHED on a second Attach
// without a Detach in between.
func (n *Notifier) Attach(r Reactor) error {
	if n.attached {
		return &errors.Error{Code: errors.CodeAlreadyAttached, Message: "notifier already attached to a reactor"}
	}
	if err := r.Register(n.stream.Fd(), n.HandleRead); err != nil {
		return err
	}
	n.reactor = r
	n.attached = true
	return nil
}

// Detach unregisters from the reactor. Safe to call once per Attach;
// further calls are no-ops.
func (n *Notifier) Detach() error {
	if !n.attached {
		return nil
	}
	n.attached = false
	err := n.reactor.Unregister(n.stream.Fd())
	n.reactor = nil
	return err
}

// HandleRead drains and processes whatever the stream has, without
// waiting. Reactor callbacks land here; it is also usable directly by
// callers polling the descriptor themselves. After a fatal error the
// notifier latches shut and further calls are no-ops.
func (n *Notifier) HandleRead() {
	if n.failed.Load() {
		return
	}
	if err := n.ReadEvents(); err != nil {
		n.fail(err, "failed to read event stream")
		return
	}
	if err := n.ProcessEvents(); err != nil {
		n.fail(err, "failed to process events")
	}
}

// fail logs err and, when its code is fatal, stops the notifier from
// handling further readiness callbacks.
func (n *Notifier) fail(err error, msg string) {
	var derr *errors.Error
	if errors.As(err, &derr) && derr.Code.Fatal() {
		n.failed.Store(true)
		n.log.WithError(err).Error(msg + ", ignoring further reads")
		return
	}
	n.log.WithError(err).Error(msg)
}
