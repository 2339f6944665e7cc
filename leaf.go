package pagekv

import (
	"bytes"
	"unicode/utf8"
)

// PageHeader is the common prefix of every tree page: leaf and
// internal headers both start with these three fields, so the first
// bytes of any page can be decoded as a PageHeader without knowing
// which kind of node it is.
type PageHeader struct {
	ParentID PageID
	IsLeaf   uint32
	NumKeys  uint32
}

// LeafHeader is the fixed-layout prefix of a leaf page. The reserved
// region keeps it the same size the corresponding prefix of
// InternalHeader occupies, per spec.md's external byte layout (§6).
type LeafHeader struct {
	PageHeader
	Reserved       [98]byte
	FreeSpace      uint32
	RightSiblingID PageID
}

// LeafHeaderSize is sizeof(LeafHeader) in its encoded form: 8 + 4 + 4
// (PageHeader) + 98 (reserved) + 4 (free_space) + 8 (right_sibling_id).
const LeafHeaderSize = 8 + 4 + 4 + 98 + 4 + 8

// SlotBufferSize is the portion of a page available to a leaf's slot
// directory and data heap.
const SlotBufferSize = PageSize - LeafHeaderSize

// LeafSlotSize is the encoded width of one LeafSlot: four uint16
// fields.
const LeafSlotSize = 8

// LeafSlot is one entry in a leaf's slot directory.
type LeafSlot struct {
	KeyLen      uint16
	KeyOffset   uint16
	ValueLen    uint16
	ValueOffset uint16
}

// LeafPage interprets a page buffer as a B+Tree leaf node: an ordered
// slot directory growing from the front of the slot buffer, and a
// key/value data heap growing from the back.
//
// Within one record the value is placed first (at the lower address)
// and the key immediately follows it (KeyOffset == ValueOffset +
// ValueLen): the heap is filled by allocating the key's bytes first,
// then the value's, with the heap growing toward lower addresses, so
// the value — allocated second — ends up closer to the free-space
// frontier. ValueOffset is therefore always the floor of a record's
// byte range, which is what the insert/remove/split shifting below
// tracks as "min_offset".
type LeafPage struct {
	buf    *PageBuffer
	header LeafHeader
}

// NewLeafPage initializes buf as a fresh, empty leaf page with the
// given parent.
func NewLeafPage(buf *PageBuffer, parentID PageID) *LeafPage {
	lp := &LeafPage{buf: buf}
	lp.header = LeafHeader{
		PageHeader: PageHeader{ParentID: parentID, IsLeaf: 1, NumKeys: 0},
		FreeSpace:  SlotBufferSize,
	}
	lp.flushHeader()
	return lp
}

// ViewLeafPage decodes buf's header and wraps it as a LeafPage view.
func ViewLeafPage(buf *PageBuffer) (*LeafPage, error) {
	header, err := Decode[LeafHeader](buf)
	if err != nil {
		return nil, err
	}
	return &LeafPage{buf: buf, header: header}, nil
}

func (lp *LeafPage) flushHeader() {
	_ = Encode(lp.header, lp.buf) // LeafHeader always fits; error path unreachable for a fixed-size struct
}

// Buffer returns the underlying page buffer, e.g. to hand to
// BufferPool.WritePage or to re-view as a different page kind.
func (lp *LeafPage) Buffer() *PageBuffer { return lp.buf }

// ParentID / SetParentID, RightSiblingID / SetRightSiblingID are plain
// getters/setters on the header fields. Setting RightSiblingID is the
// caller's responsibility — LeafPage never allocates its own sibling.
func (lp *LeafPage) ParentID() PageID     { return lp.header.ParentID }
func (lp *LeafPage) SetParentID(id PageID) { lp.header.ParentID = id; lp.flushHeader() }

func (lp *LeafPage) RightSiblingID() PageID { return lp.header.RightSiblingID }
func (lp *LeafPage) SetRightSiblingID(id PageID) {
	lp.header.RightSiblingID = id
	lp.flushHeader()
}

// NumKeys returns the number of records currently stored.
func (lp *LeafPage) NumKeys() int { return int(lp.header.NumKeys) }

// FreeSpace returns the number of unused bytes between the slot
// directory and the data heap.
func (lp *LeafPage) FreeSpace() uint32 { return lp.header.FreeSpace }

func (lp *LeafPage) slotOffset(i int) int { return LeafHeaderSize + i*LeafSlotSize }

func (lp *LeafPage) slotAt(i int) LeafSlot {
	off := lp.slotOffset(i)
	return LeafSlot{
		KeyLen:      le16(lp.buf[off:]),
		KeyOffset:   le16(lp.buf[off+2:]),
		ValueLen:    le16(lp.buf[off+4:]),
		ValueOffset: le16(lp.buf[off+6:]),
	}
}

func (lp *LeafPage) setSlotAt(i int, s LeafSlot) {
	off := lp.slotOffset(i)
	putLE16(lp.buf[off:], s.KeyLen)
	putLE16(lp.buf[off+2:], s.KeyOffset)
	putLE16(lp.buf[off+4:], s.ValueLen)
	putLE16(lp.buf[off+6:], s.ValueOffset)
}

func (lp *LeafPage) rawKeyAt(i int) []byte {
	s := lp.slotAt(i)
	start := LeafHeaderSize + int(s.KeyOffset)
	return lp.buf[start : start+int(s.KeyLen)]
}

func (lp *LeafPage) rawValueAt(i int) []byte {
	s := lp.slotAt(i)
	start := LeafHeaderSize + int(s.ValueOffset)
	return lp.buf[start : start+int(s.ValueLen)]
}

// Key returns a copy of the key stored at slot index i.
func (lp *LeafPage) Key(i int) ([]byte, error) {
	if i < 0 || i >= lp.NumKeys() {
		return nil, &InvalidSlotIndexError{Idx: i, NumKeys: lp.NumKeys()}
	}
	return append([]byte(nil), lp.rawKeyAt(i)...), nil
}

// Value returns a copy of the value stored at slot index i.
func (lp *LeafPage) Value(i int) ([]byte, error) {
	if i < 0 || i >= lp.NumKeys() {
		return nil, &InvalidSlotIndexError{Idx: i, NumKeys: lp.NumKeys()}
	}
	return append([]byte(nil), lp.rawValueAt(i)...), nil
}

// CanInsert reports whether key/value satisfy the length limits and
// would fit in the page's current free space.
func (lp *LeafPage) CanInsert(key, value []byte) bool {
	if len(key) > KeyLengthLimit || len(value) > ValueLengthLimit {
		return false
	}
	need := uint32(LeafSlotSize + len(key) + len(value))
	return need <= lp.header.FreeSpace
}

// Insert adds (key, value) in sorted position, returning the number of
// bytes the record consumed. Equal keys are resolved by inserting the
// new record after any existing equal keys (stable append-on-equal).
func (lp *LeafPage) Insert(key, value []byte) (int, error) {
	if len(key) > KeyLengthLimit {
		return 0, &KeyLengthError{Len: len(key), Limit: KeyLengthLimit}
	}
	if len(value) > ValueLengthLimit {
		return 0, &ValueLengthError{Len: len(value), Limit: ValueLengthLimit}
	}
	need := uint32(LeafSlotSize + len(key) + len(value))
	if need > lp.header.FreeSpace {
		return 0, &NotEnoughSpaceError{Required: need, Available: lp.header.FreeSpace}
	}

	numKeys := lp.NumKeys()

	idx := 0
	for idx < numKeys && bytes.Compare(lp.rawKeyAt(idx), key) <= 0 {
		idx++
	}

	var prevOffset uint16 = SlotBufferSize
	if idx > 0 {
		prevOffset = lp.slotAt(idx - 1).ValueOffset
	}

	minOffset := uint16(SlotBufferSize)
	for i := 0; i < numKeys; i++ {
		if s := lp.slotAt(i); s.ValueOffset < minOffset {
			minOffset = s.ValueOffset
		}
	}

	shift := uint16(len(key) + len(value))

	// Slots after the insertion point keep their relative order but
	// their data moves further down the heap to open room for the new
	// record; update the stored offsets before physically relocating
	// anything.
	for i := idx; i < numKeys; i++ {
		s := lp.slotAt(i)
		s.KeyOffset -= shift
		s.ValueOffset -= shift
		lp.setSlotAt(i, s)
	}

	// Shift the slot directory right by one slot to open a gap at idx.
	srcStart := lp.slotOffset(idx)
	srcEnd := lp.slotOffset(numKeys)
	if srcEnd > srcStart {
		dstStart := srcStart + LeafSlotSize
		copy(lp.buf[dstStart:dstStart+(srcEnd-srcStart)], lp.buf[srcStart:srcEnd])
	}

	// Shift the data heap down by shift bytes to open room for the new
	// record immediately below prevOffset.
	heapSrcStart := LeafHeaderSize + int(minOffset)
	heapSrcEnd := LeafHeaderSize + int(prevOffset)
	if heapSrcEnd > heapSrcStart {
		heapDstStart := heapSrcStart - int(shift)
		copy(lp.buf[heapDstStart:heapDstStart+(heapSrcEnd-heapSrcStart)], lp.buf[heapSrcStart:heapSrcEnd])
	}

	newValueOffset := prevOffset - shift
	newKeyOffset := newValueOffset + uint16(len(value))
	copy(lp.buf[LeafHeaderSize+int(newValueOffset):], value)
	copy(lp.buf[LeafHeaderSize+int(newKeyOffset):], key)

	lp.setSlotAt(idx, LeafSlot{
		KeyLen:      uint16(len(key)),
		KeyOffset:   newKeyOffset,
		ValueLen:    uint16(len(value)),
		ValueOffset: newValueOffset,
	})

	lp.header.NumKeys++
	lp.header.FreeSpace -= need
	lp.flushHeader()

	return int(need), nil
}

// Remove deletes the record for key, compacting the slot directory and
// data heap to close the gap it leaves behind.
func (lp *LeafPage) Remove(key []byte) error {
	numKeys := lp.NumKeys()
	idx := -1
	for i := 0; i < numKeys; i++ {
		if bytes.Equal(lp.rawKeyAt(i), key) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &KeyNotFoundError{Key: string(key)}
	}

	removed := lp.slotAt(idx)
	shift := removed.KeyLen + removed.ValueLen

	minOffset := uint16(SlotBufferSize)
	for i := 0; i < numKeys; i++ {
		if i == idx {
			continue
		}
		if s := lp.slotAt(i); s.ValueOffset < minOffset {
			minOffset = s.ValueOffset
		}
	}

	for i := idx + 1; i < numKeys; i++ {
		s := lp.slotAt(i)
		s.KeyOffset += shift
		s.ValueOffset += shift
		lp.setSlotAt(i, s)
	}

	srcStart := lp.slotOffset(idx + 1)
	srcEnd := lp.slotOffset(numKeys)
	if srcEnd > srcStart {
		dstStart := lp.slotOffset(idx)
		copy(lp.buf[dstStart:dstStart+(srcEnd-srcStart)], lp.buf[srcStart:srcEnd])
	}

	heapSrcStart := LeafHeaderSize + int(minOffset)
	heapSrcEnd := LeafHeaderSize + int(removed.ValueOffset)
	if heapSrcEnd > heapSrcStart {
		heapDstStart := heapSrcStart + int(shift)
		copy(lp.buf[heapDstStart:heapDstStart+(heapSrcEnd-heapSrcStart)], lp.buf[heapSrcStart:heapSrcEnd])
	}

	lp.header.NumKeys--
	lp.header.FreeSpace += uint32(LeafSlotSize) + uint32(shift)
	lp.flushHeader()
	return nil
}

// Find returns the value associated with key as a UTF-8 string.
func (lp *LeafPage) Find(key []byte) (string, error) {
	numKeys := lp.NumKeys()
	for i := 0; i < numKeys; i++ {
		if bytes.Equal(lp.rawKeyAt(i), key) {
			v := lp.rawValueAt(i)
			if !utf8.Valid(v) {
				return "", &Utf8ConvertError{Field: "value"}
			}
			return string(v), nil
		}
	}
	return "", &KeyNotFoundError{Key: string(key)}
}

// Split moves roughly the upper half of lp's records into right (which
// must be a freshly zeroed page) and returns the smallest key now in
// right. right inherits lp's old right sibling; the caller is
// responsible for allocating right's page id, pointing lp at it with
// lp.SetRightSiblingID, and installing the split key as a routing entry
// in the parent.
func (lp *LeafPage) Split(right *LeafPage) (string, error) {
	numKeys := lp.NumKeys()
	if numKeys < 2 {
		return "", &NotEnoughSpaceError{Required: 2, Available: uint32(numKeys)}
	}

	const half = SlotBufferSize / 2
	var acc uint32
	splitIdx := 0
	for splitIdx < numKeys {
		s := lp.slotAt(splitIdx)
		acc += uint32(LeafSlotSize) + uint32(s.KeyLen) + uint32(s.ValueLen)
		splitIdx++
		if acc >= half {
			break
		}
	}
	// The accumulation above counted slot splitIdx-1 already: back off
	// one so right receives [splitIdx, numKeys). Clamp so both sides
	// keep at least one record even if the very first record already
	// exceeds half the buffer.
	if splitIdx > 0 {
		splitIdx--
	}
	if splitIdx < 1 {
		splitIdx = 1
	}
	if splitIdx >= numKeys {
		splitIdx = numKeys - 1
	}

	cursor := uint16(SlotBufferSize)
	for i := splitIdx; i < numKeys; i++ {
		s := lp.slotAt(i)
		key := append([]byte(nil), lp.rawKeyAt(i)...)
		value := append([]byte(nil), lp.rawValueAt(i)...)

		newValueOffset := cursor - s.ValueLen - s.KeyLen
		newKeyOffset := newValueOffset + s.ValueLen
		copy(right.buf[LeafHeaderSize+int(newValueOffset):], value)
		copy(right.buf[LeafHeaderSize+int(newKeyOffset):], key)

		right.setSlotAt(i-splitIdx, LeafSlot{
			KeyLen:      s.KeyLen,
			KeyOffset:   newKeyOffset,
			ValueLen:    s.ValueLen,
			ValueOffset: newValueOffset,
		})
		cursor = newValueOffset
	}

	rightNumKeys := uint32(numKeys - splitIdx)
	right.header = LeafHeader{
		PageHeader:     PageHeader{ParentID: lp.header.ParentID, IsLeaf: 1, NumKeys: rightNumKeys},
		FreeSpace:      uint32(cursor) - rightNumKeys*LeafSlotSize,
		RightSiblingID: lp.header.RightSiblingID,
	}
	right.flushHeader()

	selfMinOffset := lp.slotAt(splitIdx - 1).ValueOffset
	lp.header.NumKeys = uint32(splitIdx)
	lp.header.FreeSpace = uint32(selfMinOffset) - uint32(splitIdx)*LeafSlotSize
	lp.flushHeader()

	splitKey, err := right.Key(0)
	if err != nil {
		return "", err
	}
	return string(splitKey), nil
}

// Validate checks the free-space and ordering invariants spec.md §8
// requires of every leaf page: the accounting equation holds, and slot
// keys are non-decreasing.
func (lp *LeafPage) Validate() bool {
	numKeys := lp.NumKeys()
	var used uint32
	for i := 0; i < numKeys; i++ {
		s := lp.slotAt(i)
		used += uint32(s.KeyLen) + uint32(s.ValueLen)
		if i > 0 && bytes.Compare(lp.rawKeyAt(i-1), lp.rawKeyAt(i)) > 0 {
			return false
		}
	}
	return uint32(numKeys)*LeafSlotSize+used+lp.header.FreeSpace == SlotBufferSize
}
