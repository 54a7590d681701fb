package inotify

import (
	"strings"

	"github.com/pathwatch/pathwatch/internal/errors"
)

// Mask is a bitset of inotify event flags. The values match
// <linux/inotify.h> so a Mask can be handed to the kernel verbatim.
type Mask uint32

// Event flags raised by (or passed to) the kernel.
const (
	Access       Mask = 0x00000001 // file was accessed
	Modify       Mask = 0x00000002 // file was modified
	Attrib       Mask = 0x00000004 // metadata changed
	CloseWrite   Mask = 0x00000008 // writable file was closed
	CloseNoWrite Mask = 0x00000010 // unwritable file closed
	Open         Mask = 0x00000020 // file was opened
	MovedFrom    Mask = 0x00000040 // file was moved out of a watched dir
	MovedTo      Mask = 0x00000080 // file was moved into a watched dir
	Create       Mask = 0x00000100 // subfile was created
	Delete       Mask = 0x00000200 // subfile was deleted
	DeleteSelf   Mask = 0x00000400 // the watched item itself was deleted
	MoveSelf     Mask = 0x00000800 // the watched item itself was moved

	Unmount       Mask = 0x00002000 // backing fs was unmounted
	QueueOverflow Mask = 0x00004000 // kernel event queue overflowed
	Ignored       Mask = 0x00008000 // watch was removed, wd never reused

	OnlyDir    Mask = 0x01000000 // only watch the path if it is a directory
	DontFollow Mask = 0x02000000 // don't follow a symlink
	ExclUnlink Mask = 0x04000000 // don't report events on unlinked children
	MaskAdd    Mask = 0x20000000 // OR into the mask of an existing watch
	IsDir      Mask = 0x40000000 // event occurred against a directory
	OneShot    Mask = 0x80000000 // only send the event once
)

// AllEvents selects every normal event category.
const AllEvents = Access | Modify | Attrib | CloseWrite | CloseNoWrite |
	Open | MovedFrom | MovedTo | Create | Delete | DeleteSelf | MoveSelf

// Category identifies exactly one event kind, the IN_ISDIR bit stripped.
type Category int

// Event categories, in mask bit order.
const (
	CatAccess Category = iota
	CatModify
	CatAttrib
	CatCloseWrite
	CatCloseNoWrite
	CatOpen
	CatMovedFrom
	CatMovedTo
	CatCreate
	CatDelete
	CatDeleteSelf
	CatMoveSelf
	CatUnmount
	CatQueueOverflow
	CatIgnored

	NumCategories int = iota
)

// Family is a fallback grouping of related categories sharing one handler
// when no category-specific handler exists.
type Family int

// Families with more than one member.
const (
	FamilyNone Family = iota
	FamilyClose
	FamilyMoved
	FamilyDelete
)

var categories = [NumCategories]struct {
	mask   Mask
	name   string
	family Family
}{
	CatAccess:        {Access, "IN_ACCESS", FamilyNone},
	CatModify:        {Modify, "IN_MODIFY", FamilyNone},
	CatAttrib:        {Attrib, "IN_ATTRIB", FamilyNone},
	CatCloseWrite:    {CloseWrite, "IN_CLOSE_WRITE", FamilyClose},
	CatCloseNoWrite:  {CloseNoWrite, "IN_CLOSE_NOWRITE", FamilyClose},
	CatOpen:          {Open, "IN_OPEN", FamilyNone},
	CatMovedFrom:     {MovedFrom, "IN_MOVED_FROM", FamilyMoved},
	CatMovedTo:       {MovedTo, "IN_MOVED_TO", FamilyMoved},
	CatCreate:        {Create, "IN_CREATE", FamilyNone},
	CatDelete:        {Delete, "IN_DELETE", FamilyDelete},
	CatDeleteSelf:    {DeleteSelf, "IN_DELETE_SELF", FamilyDelete},
	CatMoveSelf:      {MoveSelf, "IN_MOVE_SELF", FamilyNone},
	CatUnmount:       {Unmount, "IN_UNMOUNT", FamilyNone},
	CatQueueOverflow: {QueueOverflow, "IN_Q_OVERFLOW", FamilyNone},
	CatIgnored:       {Ignored, "IN_IGNORED", FamilyNone},
}

// maskToCategory and nameToMask are the bidirectional lookup tables, built
// once at process start.
var (
	maskToCategory = func() map[Mask]Category {
		m := make(map[Mask]Category, NumCategories)
		for c, e := range categories {
			m[e.mask] = Category(c)
		}
		return m
	}()

	nameToMask = func() map[string]Mask {
		m := make(map[string]Mask, NumCategories+1)
		for _, e := range categories {
			m[e.name] = e.mask
		}
		m["ALL_EVENTS"] = AllEvents
		return m
	}()
)

// CategoryOf returns the category encoded in m, ignoring the IsDir bit.
// ok is false when the remaining bits are not exactly one known category.
func (m Mask) CategoryOf() (cat Category, ok bool) {
	cat, ok = maskToCategory[m&^IsDir]
	return cat, ok
}

// Name returns the human-readable event name for a single-category mask,
// with "|IN_ISDIR" appended when the directory bit is set. Unknown masks
// render as an empty string.
func (m Mask) Name() string {
	cat, ok := m.CategoryOf()
	if !ok {
		return ""
	}
	if m&IsDir != 0 {
		return categories[cat].name + "|IN_ISDIR"
	}
	return categories[cat].name
}

// String renders every set flag of a (possibly combined) mask.
func (m Mask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	for _, e := range categories {
		if m&e.mask != 0 {
			parts = append(parts, e.name)
		}
	}
	if m&IsDir != 0 {
		parts = append(parts, "IN_ISDIR")
	}
	return strings.Join(parts, "|")
}

// Mask returns the mask bit of the category.
func (c Category) Mask() Mask {
	return categories[c].mask
}

// Name returns the event name of the category.
func (c Category) Name() string {
	return categories[c].name
}

// Family returns the fallback family of the category, or FamilyNone when
// the category stands alone.
func (c Category) Family() Family {
	return categories[c].family
}

// ParseMask builds a mask from a comma-separated list of event names.
// Names are matched case-insensitively, with or without the IN_ prefix,
// so "create,close_write" and "IN_CREATE,IN_CLOSE_WRITE" are equivalent.
// "all" selects every normal event.
func ParseMask(s string) (Mask, error) {
	var m Mask
	for part := range strings.SplitSeq(s, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if name == "ALL" {
			m |= AllEvents
			continue
		}
		if !strings.HasPrefix(name, "IN_") && name != "ALL_EVENTS" {
			name = "IN_" + name
		}
		bit, ok := nameToMask[name]
		if !ok {
			return 0, errors.InvalidArgumentf("unknown event name %q", part)
		}
		m |= bit
	}
	if m == 0 {
		return 0, errors.InvalidArgumentf("empty event mask %q", s)
	}
	return m, nil
}
