package watcher

import (
	"github.com/pathwatch/pathwatch/internal/errors"
	"github.com/pathwatch/pathwatch/internal/inotify"
)

// Handler processes enriched events. ProcessDefault receives every event
// the handler has no more specific method for. Returning true stops the
// rest of the handler chain for that event.
//
// Handlers opt into finer-grained processing by also implementing the
// category interfaces below. Resolution order is fixed: a category-specific
// method wins over a family method, which wins over ProcessDefault.
type Handler interface {
	ProcessDefault(e *Event) bool
}

// Category-specific handler capabilities.
type (
	AccessHandler       interface{ ProcessAccess(e *Event) bool }
	ModifyHandler       interface{ ProcessModify(e *Event) bool }
	AttribHandler       interface{ ProcessAttrib(e *Event) bool }
	CloseWriteHandler   interface{ ProcessCloseWrite(e *Event) bool }
	CloseNoWriteHandler interface{ ProcessCloseNoWrite(e *Event) bool }
	OpenHandler         interface{ ProcessOpen(e *Event) bool }
	MovedFromHandler    interface{ ProcessMovedFrom(e *Event) bool }
	MovedToHandler      interface{ ProcessMovedTo(e *Event) bool }
	CreateHandler       interface{ ProcessCreate(e *Event) bool }
	DeleteSelfHandler   interface{ ProcessDeleteSelf(e *Event) bool }
	MoveSelfHandler     interface{ ProcessMoveSelf(e *Event) bool }
	UnmountHandler      interface{ ProcessUnmount(e *Event) bool }
	OverflowHandler     interface{ ProcessQueueOverflow(e *Event) bool }
	IgnoredHandler      interface{ ProcessIgnored(e *Event) bool }
)

// Family handler capabilities. ProcessClose covers both close variants,
// ProcessMoved both halves of a rename. ProcessDelete is the specific
// method for child deletion and doubles as the family fallback for
// IN_DELETE_SELF.
type (
	CloseHandler  interface{ ProcessClose(e *Event) bool }
	MovedHandler  interface{ ProcessMoved(e *Event) bool }
	DeleteHandler interface{ ProcessDelete(e *Event) bool }
)

// HandlerFunc adapts a plain function to a default-only Handler.
type HandlerFunc func(e *Event) bool

// ProcessDefault calls f.
func (f HandlerFunc) ProcessDefault(e *Event) bool { return f(e) }

// OnlyIf is a chain element that stops the handlers behind it unless pred
// accepts the event. Used to narrow a chain to, say, a single filename.
func OnlyIf(pred func(e *Event) bool) Handler {
	return HandlerFunc(func(e *Event) bool { return !pred(e) })
}

// Dispatcher resolves events to one handler method. The three-tier
// resolution (specific, family, default) is computed once here, at
// construction, not per event.
type Dispatcher struct {
	table [inotify.NumCategories]func(e *Event) bool
}

// NewDispatcher builds the dispatch table for h.
func NewDispatcher(h Handler) *Dispatcher {
	d := &Dispatcher{}
	for c := range inotify.NumCategories {
		cat := inotify.Category(c)
		if fn := specificMethod(h, cat); fn != nil {
			d.table[c] = fn
			continue
		}
		if fn := familyMethod(h, cat.Family()); fn != nil {
			d.table[c] = fn
			continue
		}
		d.table[c] = h.ProcessDefault
	}
	return d
}

// Dispatch invokes exactly one handler method for e and reports whether
// the handler asked to stop the chain. An event whose mask maps to no
// known category is a fatal condition raised to the caller.
func (d *Dispatcher) Dispatch(e *Event) (stop bool, err error) {
	cat, ok := e.Mask.CategoryOf()
	if !ok {
		return false, errors.UnknownCategoryf("undispatchable event mask %#x", uint32(e.Mask))
	}
	return d.table[cat](e), nil
}

func specificMethod(h Handler, cat inotify.Category) func(e *Event) bool {
	switch cat {
	case inotify.CatAccess:
		if s, ok := h.(AccessHandler); ok {
			return s.ProcessAccess
		}
	case inotify.CatModify:
		if s, ok := h.(ModifyHandler); ok {
			return s.ProcessModify
		}
	case inotify.CatAttrib:
		if s, ok := h.(AttribHandler); ok {
			return s.ProcessAttrib
		}
	case inotify.CatCloseWrite:
		if s, ok := h.(CloseWriteHandler); ok {
			return s.ProcessCloseWrite
		}
	case inotify.CatCloseNoWrite:
		if s, ok := h.(CloseNoWriteHandler); ok {
			return s.ProcessCloseNoWrite
		}
	case inotify.CatOpen:
		if s, ok := h.(OpenHandler); ok {
			return s.ProcessOpen
		}
	case inotify.CatMovedFrom:
		if s, ok := h.(MovedFromHandler); ok {
			return s.ProcessMovedFrom
		}
	case inotify.CatMovedTo:
		if s, ok := h.(MovedToHandler); ok {
			return s.ProcessMovedTo
		}
	case inotify.CatCreate:
		if s, ok := h.(CreateHandler); ok {
			return s.ProcessCreate
		}
	case inotify.CatDelete:
		if s, ok := h.(DeleteHandler); ok {
			return s.ProcessDelete
		}
	case inotify.CatDeleteSelf:
		if s, ok := h.(DeleteSelfHandler); ok {
			return s.ProcessDeleteSelf
		}
	case inotify.CatMoveSelf:
		if s, ok := h.(MoveSelfHandler); ok {
			return s.ProcessMoveSelf
		}
	case inotify.CatUnmount:
		if s, ok := h.(UnmountHandler); ok {
			return s.ProcessUnmount
		}
	case inotify.CatQueueOverflow:
		if s, ok := h.(OverflowHandler); ok {
			return s.ProcessQueueOverflow
		}
	case inotify.CatIgnored:
		if s, ok := h.(IgnoredHandler); ok {
			return s.ProcessIgnored
		}
	}
	return nil
}

func familyMethod(h Handler, fam inotify.Family) func(e *Event) bool {
	switch fam {
	case inotify.FamilyClose:
		if s, ok := h.(CloseHandler); ok {
			return s.ProcessClose
		}
	case inotify.FamilyMoved:
		if s, ok := h.(MovedHandler); ok {
			return s.ProcessMoved
		}
	case inotify.FamilyDelete:
		if s, ok := h.(DeleteHandler); ok {
			return s.ProcessDelete
		}
	}
	return nil
}

// Chain is an ordered list of dispatchers sharing one event. The first
// element runs first; a truthy handler return short-circuits the rest,
// which lets filter, log and stats handlers compose without knowing about
// each other.
type Chain []*Dispatcher

// NewChain builds a chain from handlers, outermost first.
func NewChain(handlers ...Handler) Chain {
	c := make(Chain, 0, len(handlers))
	for _, h := range handlers {
		c = append(c, NewDispatcher(h))
	}
	return c
}

// Dispatch runs the chain for e.
func (c Chain) Dispatch(e *Event) error {
	for _, d := range c {
		stop, err := d.Dispatch(e)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}
