package inotify

import (
	"encoding/binary"
	"strings"

	"github.com/pathwatch/pathwatch/internal/errors"
)

// Wire layout of one kernel record: a fixed 16-byte header (wd, mask,
// cookie, name length) immediately followed by the NUL-padded name.
const headerSize = 16

// Decode turns a buffer read from the kernel stream into the ordered
// sequence of raw events it contains. A record cut short by the end of the
// buffer is a fatal TRUNCATED_STREAM error: the kernel never delivers
// partial records, so a short read means the stream is corrupt.
func Decode(buf []byte) ([]RawEvent, error) {
	var events []RawEvent
	for off := 0; off < len(buf); {
		if len(buf)-off < headerSize {
			return nil, errors.TruncatedStream("short event header")
		}
		wd := int32(binary.NativeEndian.Uint32(buf[off:]))
		mask := Mask(binary.NativeEndian.Uint32(buf[off+4:]))
		cookie := binary.NativeEndian.Uint32(buf[off+8:])
		nameLen := int(binary.NativeEndian.Uint32(buf[off+12:]))
		off += headerSize

		if len(buf)-off < nameLen {
			return nil, errors.TruncatedStream("short event name")
		}
		name := strings.TrimRight(string(buf[off:off+nameLen]), "\x00")
		off += nameLen

		events = append(events, RawEvent{Wd: wd, Mask: mask, Cookie: cookie, Name: name})
	}
	return events, nil
}

// Append encodes ev in the kernel wire format and appends it to dst.
// Names are NUL-terminated and padded to a four-byte boundary, the way the
// kernel pads them. Used by tests and the in-memory stream fake.
func Append(dst []byte, ev RawEvent) []byte {
	nameLen := 0
	if ev.Name != "" {
		nameLen = (len(ev.Name) + 1 + 3) &^ 3
	}

	var hdr [headerSize]byte
	binary.NativeEndian.PutUint32(hdr[0:], uint32(ev.Wd))
	binary.NativeEndian.PutUint32(hdr[4:], uint32(ev.Mask))
	binary.NativeEndian.PutUint32(hdr[8:], ev.Cookie)
	binary.NativeEndian.PutUint32(hdr[12:], uint32(nameLen))

	dst = append(dst, hdr[:]...)
	dst = append(dst, ev.Name...)
	for i := len(ev.Name); i < nameLen; i++ {
		dst = append(dst, 0)
	}
	return dst
}
