package pagekv

import "bytes"

// InternalHeader is the fixed-layout prefix of an internal page. Up to
// and including Reserved it has the same layout as LeafHeader, so both
// page kinds share one PageHeader-decodable prefix; LeftmostChildID
// takes the place of the leaf's FreeSpace/RightSiblingID pair, which
// makes InternalHeader 4 bytes shorter than LeafHeader.
type InternalHeader struct {
	PageHeader
	Reserved        [98]byte
	LeftmostChildID PageID
}

// InternalHeaderSize is sizeof(InternalHeader): 8 + 4 + 4 (PageHeader)
// + 98 (reserved) + 8 (leftmost_child_id).
const InternalHeaderSize = 8 + 4 + 4 + 98 + 8

// InternalSlotBufferSize is the portion of an internal page available
// to its slot directory and key heap.
const InternalSlotBufferSize = PageSize - InternalHeaderSize

// InternalSlotSize is the encoded width of one InternalSlot: two
// uint16 fields plus a PageID.
const InternalSlotSize = 2 + 2 + 8

// InternalSlot is one routing entry: the subtree at ChildID holds keys
// in [this slot's key, the next slot's key), or keys >= this slot's
// key through the end of the page's range if there is no next slot.
type InternalSlot struct {
	KeyLen    uint16
	KeyOffset uint16
	ChildID   PageID
}

// InternalPage interprets a page buffer as a B+Tree internal node. Its
// slot directory and key heap follow exactly the layout and shifting
// rules LeafPage uses, minus a value heap: what an internal page
// stores per slot is a routing key and a fixed-width child pointer, so
// "value" in the leaf sense is always 0 bytes wide here.
type InternalPage struct {
	buf    *PageBuffer
	header InternalHeader
}

// NewInternalPage initializes buf as a fresh internal page whose sole
// child, for now, is leftmostChild.
func NewInternalPage(buf *PageBuffer, parentID PageID, leftmostChild PageID) *InternalPage {
	ip := &InternalPage{buf: buf}
	ip.header = InternalHeader{
		PageHeader:      PageHeader{ParentID: parentID, IsLeaf: 0, NumKeys: 0},
		LeftmostChildID: leftmostChild,
	}
	ip.flushHeader()
	return ip
}

// ViewInternalPage decodes buf's header and wraps it as an
// InternalPage view.
func ViewInternalPage(buf *PageBuffer) (*InternalPage, error) {
	header, err := Decode[InternalHeader](buf)
	if err != nil {
		return nil, err
	}
	return &InternalPage{buf: buf, header: header}, nil
}

func (ip *InternalPage) flushHeader() {
	_ = Encode(ip.header, ip.buf)
}

// Buffer returns the underlying page buffer.
func (ip *InternalPage) Buffer() *PageBuffer { return ip.buf }

func (ip *InternalPage) ParentID() PageID      { return ip.header.ParentID }
func (ip *InternalPage) SetParentID(id PageID) { ip.header.ParentID = id; ip.flushHeader() }

// LeftmostChildID returns the distinguished pointer for keys smaller
// than every routing key on the page.
func (ip *InternalPage) LeftmostChildID() PageID { return ip.header.LeftmostChildID }
func (ip *InternalPage) SetLeftmostChildID(id PageID) {
	ip.header.LeftmostChildID = id
	ip.flushHeader()
}

// NumKeys returns the number of routing entries currently stored.
func (ip *InternalPage) NumKeys() int { return int(ip.header.NumKeys) }

// FreeSpace returns the number of unused bytes between the slot
// directory and the key heap.
func (ip *InternalPage) FreeSpace() uint32 {
	return uint32(InternalSlotBufferSize) - uint32(ip.NumKeys())*InternalSlotSize - ip.usedHeapBytes()
}

func (ip *InternalPage) usedHeapBytes() uint32 {
	numKeys := ip.NumKeys()
	var used uint32
	for i := 0; i < numKeys; i++ {
		used += uint32(ip.slotAt(i).KeyLen)
	}
	return used
}

func (ip *InternalPage) slotOffset(i int) int { return InternalHeaderSize + i*InternalSlotSize }

func (ip *InternalPage) slotAt(i int) InternalSlot {
	off := ip.slotOffset(i)
	return InternalSlot{
		KeyLen:    le16(ip.buf[off:]),
		KeyOffset: le16(ip.buf[off+2:]),
		ChildID:   PageID(le64(ip.buf[off+4:])),
	}
}

func (ip *InternalPage) setSlotAt(i int, s InternalSlot) {
	off := ip.slotOffset(i)
	putLE16(ip.buf[off:], s.KeyLen)
	putLE16(ip.buf[off+2:], s.KeyOffset)
	putLE64(ip.buf[off+4:], uint64(s.ChildID))
}

func (ip *InternalPage) rawKeyAt(i int) []byte {
	s := ip.slotAt(i)
	start := InternalHeaderSize + int(s.KeyOffset)
	return ip.buf[start : start+int(s.KeyLen)]
}

// Key returns a copy of the routing key at slot index i.
func (ip *InternalPage) Key(i int) ([]byte, error) {
	if i < 0 || i >= ip.NumKeys() {
		return nil, &InvalidSlotIndexError{Idx: i, NumKeys: ip.NumKeys()}
	}
	return append([]byte(nil), ip.rawKeyAt(i)...), nil
}

// ChildAt returns the child pointer stored at slot index i.
func (ip *InternalPage) ChildAt(i int) (PageID, error) {
	if i < 0 || i >= ip.NumKeys() {
		return 0, &InvalidSlotIndexError{Idx: i, NumKeys: ip.NumKeys()}
	}
	return ip.slotAt(i).ChildID, nil
}

// Route returns the child pointer whose subtree is responsible for
// key: the leftmost child if key precedes every routing key, otherwise
// the child of the largest routing key that is <= key.
func (ip *InternalPage) Route(key []byte) PageID {
	numKeys := ip.NumKeys()
	if numKeys == 0 || bytes.Compare(key, ip.rawKeyAt(0)) < 0 {
		return ip.header.LeftmostChildID
	}
	idx := 0
	for idx < numKeys && bytes.Compare(ip.rawKeyAt(idx), key) <= 0 {
		idx++
	}
	return ip.slotAt(idx - 1).ChildID
}

// CanInsert reports whether key would fit in the page's current free
// space.
func (ip *InternalPage) CanInsert(key []byte) bool {
	if len(key) > KeyLengthLimit {
		return false
	}
	need := uint32(InternalSlotSize + len(key))
	return need <= ip.FreeSpace()
}

// Insert adds a routing entry (key, childID) in sorted position.
func (ip *InternalPage) Insert(key []byte, childID PageID) error {
	if len(key) > KeyLengthLimit {
		return &KeyLengthError{Len: len(key), Limit: KeyLengthLimit}
	}
	need := uint32(InternalSlotSize + len(key))
	free := ip.FreeSpace()
	if need > free {
		return &NotEnoughSpaceError{Required: need, Available: free}
	}

	numKeys := ip.NumKeys()
	idx := 0
	for idx < numKeys && bytes.Compare(ip.rawKeyAt(idx), key) <= 0 {
		idx++
	}

	var prevOffset uint16 = InternalSlotBufferSize
	if idx > 0 {
		prevOffset = ip.slotAt(idx - 1).KeyOffset
	}

	minOffset := uint16(InternalSlotBufferSize)
	for i := 0; i < numKeys; i++ {
		if s := ip.slotAt(i); s.KeyOffset < minOffset {
			minOffset = s.KeyOffset
		}
	}

	shift := uint16(len(key))

	for i := idx; i < numKeys; i++ {
		s := ip.slotAt(i)
		s.KeyOffset -= shift
		ip.setSlotAt(i, s)
	}

	srcStart := ip.slotOffset(idx)
	srcEnd := ip.slotOffset(numKeys)
	if srcEnd > srcStart {
		dstStart := srcStart + InternalSlotSize
		copy(ip.buf[dstStart:dstStart+(srcEnd-srcStart)], ip.buf[srcStart:srcEnd])
	}

	heapSrcStart := InternalHeaderSize + int(minOffset)
	heapSrcEnd := InternalHeaderSize + int(prevOffset)
	if heapSrcEnd > heapSrcStart {
		heapDstStart := heapSrcStart - int(shift)
		copy(ip.buf[heapDstStart:heapDstStart+(heapSrcEnd-heapSrcStart)], ip.buf[heapSrcStart:heapSrcEnd])
	}

	newKeyOffset := prevOffset - shift
	copy(ip.buf[InternalHeaderSize+int(newKeyOffset):], key)

	ip.setSlotAt(idx, InternalSlot{KeyLen: uint16(len(key)), KeyOffset: newKeyOffset, ChildID: childID})

	ip.header.NumKeys++
	ip.flushHeader()
	return nil
}

// Remove deletes the routing entry for key.
func (ip *InternalPage) Remove(key []byte) error {
	numKeys := ip.NumKeys()
	idx := -1
	for i := 0; i < numKeys; i++ {
		if bytes.Equal(ip.rawKeyAt(i), key) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &KeyNotFoundError{Key: string(key)}
	}

	removed := ip.slotAt(idx)
	shift := removed.KeyLen

	minOffset := uint16(InternalSlotBufferSize)
	for i := 0; i < numKeys; i++ {
		if i == idx {
			continue
		}
		if s := ip.slotAt(i); s.KeyOffset < minOffset {
			minOffset = s.KeyOffset
		}
	}

	for i := idx + 1; i < numKeys; i++ {
		s := ip.slotAt(i)
		s.KeyOffset += shift
		ip.setSlotAt(i, s)
	}

	srcStart := ip.slotOffset(idx + 1)
	srcEnd := ip.slotOffset(numKeys)
	if srcEnd > srcStart {
		dstStart := ip.slotOffset(idx)
		copy(ip.buf[dstStart:dstStart+(srcEnd-srcStart)], ip.buf[srcStart:srcEnd])
	}

	heapSrcStart := InternalHeaderSize + int(minOffset)
	heapSrcEnd := InternalHeaderSize + int(removed.KeyOffset)
	if heapSrcEnd > heapSrcStart {
		heapDstStart := heapSrcStart + int(shift)
		copy(ip.buf[heapDstStart:heapDstStart+(heapSrcEnd-heapSrcStart)], ip.buf[heapSrcStart:heapSrcEnd])
	}

	ip.header.NumKeys--
	ip.flushHeader()
	return nil
}

// Split moves roughly the upper half of ip's routing entries into
// right, promoting the boundary key rather than duplicating it: the
// entry at the split point is removed from both pages and its child
// becomes right's new leftmost pointer, the conventional B+Tree
// internal-node split. It returns the promoted key, which the caller
// installs as a routing entry in the parent pointing at right.
func (ip *InternalPage) Split(right *InternalPage) (string, error) {
	numKeys := ip.NumKeys()
	if numKeys < 2 {
		return "", &NotEnoughSpaceError{Required: 2, Available: uint32(numKeys)}
	}

	const half = InternalSlotBufferSize / 2
	var acc uint32
	splitIdx := 0
	for splitIdx < numKeys {
		s := ip.slotAt(splitIdx)
		acc += uint32(InternalSlotSize) + uint32(s.KeyLen)
		splitIdx++
		if acc >= half {
			break
		}
	}
	if splitIdx > 0 {
		splitIdx--
	}
	if splitIdx < 1 {
		splitIdx = 1
	}
	if splitIdx >= numKeys {
		splitIdx = numKeys - 1
	}

	promoted := ip.slotAt(splitIdx)
	promotedKey := append([]byte(nil), ip.rawKeyAt(splitIdx)...)

	cursor := uint16(InternalSlotBufferSize)
	for i := splitIdx + 1; i < numKeys; i++ {
		s := ip.slotAt(i)
		key := append([]byte(nil), ip.rawKeyAt(i)...)

		newKeyOffset := cursor - s.KeyLen
		copy(right.buf[InternalHeaderSize+int(newKeyOffset):], key)

		right.setSlotAt(i-splitIdx-1, InternalSlot{KeyLen: s.KeyLen, KeyOffset: newKeyOffset, ChildID: s.ChildID})
		cursor = newKeyOffset
	}

	rightNumKeys := uint32(numKeys - splitIdx - 1)
	right.header = InternalHeader{
		PageHeader:      PageHeader{ParentID: ip.header.ParentID, IsLeaf: 0, NumKeys: rightNumKeys},
		LeftmostChildID: promoted.ChildID,
	}
	right.flushHeader()

	ip.header.NumKeys = uint32(splitIdx)
	ip.flushHeader()

	return string(promotedKey), nil
}

// Validate checks that routing keys are stored in non-decreasing
// order.
func (ip *InternalPage) Validate() bool {
	numKeys := ip.NumKeys()
	for i := 1; i < numKeys; i++ {
		if bytes.Compare(ip.rawKeyAt(i-1), ip.rawKeyAt(i)) > 0 {
			return false
		}
	}
	return true
}
