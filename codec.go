package pagekv

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageSize is the fixed size of every page, on disk and in memory. No
// partial pages are ever read or written.
const PageSize = 4096

// PageBuffer is the in-memory representation of one page: exactly
// PageSize bytes, passed around as a pointer so callers share the
// buffer rather than copy it.
type PageBuffer [PageSize]byte

// Encode serializes value into the front of buf in little-endian,
// field-by-field declaration order. This is the one place the on-disk
// byte layout is decided: fields are written with their natural widths,
// never relying on Go's own struct padding or alignment (binary.Write
// walks the struct's fields explicitly, so this holds regardless of
// platform).
func Encode(value any, buf *PageBuffer) error {
	w := bytes.NewBuffer(buf[:0])
	if err := binary.Write(w, binary.LittleEndian, value); err != nil {
		return fmt.Errorf("pagekv: encode %T: %w", value, err)
	}
	if w.Len() > PageSize {
		return fmt.Errorf("pagekv: encoded %T is %d bytes, larger than a page", value, w.Len())
	}
	return nil
}

// Decode is the inverse of Encode: it populates a zero value of T from
// the front of buf. Undefined for buffers that were not produced by
// Encode of a compatible layout.
func Decode[T any](buf *PageBuffer) (T, error) {
	var value T
	r := bytes.NewReader(buf[:])
	if err := binary.Read(r, binary.LittleEndian, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("pagekv: decode %T: %w", value, err)
	}
	return value, nil
}

// le16 and putLE16 read/write a little-endian uint16 directly out of a
// page's slot directory region, without going through Encode/Decode:
// the slotted page layout (leaf.go, internal.go) packs slots densely
// at byte offsets that don't align with a Go struct's field layout.
func le16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func putLE16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

func le64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func putLE64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
