package pagekv

// BufferFrame is one slot in a BufferPool's fixed array of resident
// pages.
type BufferFrame struct {
	pageID   PageID // 0 means the slot holds no page
	buffer   PageBuffer
	pinCount int
	isDirty  bool
	refBit   bool // CLOCK reference bit
}

// BufferPool caches a bounded number of pages from a Pager in memory,
// replacing via CLOCK when full, and honoring pin/dirty semantics: a
// page with pinCount > 0 can never be chosen as an eviction victim, and
// a dirty frame is written back through the pager before its slot is
// reused.
type BufferPool struct {
	pager     Pager
	frames    []BufferFrame
	frameMap  map[PageID]int // resident page id -> frame index
	clockHand int
	header    FileHeader // snapshot, refreshed after AllocPage/FreePage
}

// NewBufferPool pre-allocates numFrames zeroed frames over pager. A
// snapshot of pager's file header is kept in sync across AllocPage and
// FreePage.
func NewBufferPool(numFrames int, pager Pager) (*BufferPool, error) {
	header, err := pager.ReadHeader()
	if err != nil {
		return nil, err
	}
	return &BufferPool{
		pager:    pager,
		frames:   make([]BufferFrame, numFrames),
		frameMap: make(map[PageID]int, numFrames),
		header:   header,
	}, nil
}

// Header returns the last-known file header snapshot.
func (bp *BufferPool) Header() FileHeader { return bp.header }

// PageHandle is a pinned, shared, mutable view into one BufferFrame's
// buffer. Acquiring a handle increments the frame's pin count; the
// caller must call Unpin exactly once when done, the way the teacher's
// PinLatch/UnpinLatch pair requires an explicit release instead of
// relying on scope exit.
type PageHandle struct {
	pool     *BufferPool
	frameIdx int
	id       PageID
}

// ID returns the identifier of the page this handle refers to.
func (h *PageHandle) ID() PageID { return h.id }

// Data returns the frame's buffer. Every handle to the same resident
// page shares the same underlying array, so a mutation through one
// handle is immediately visible through any other live handle to that
// page.
func (h *PageHandle) Data() *PageBuffer {
	return &h.pool.frames[h.frameIdx].buffer
}

// Unpin releases this handle's pin. isDirty marks the frame dirty if
// the caller mutated it through Data(); pass false for a read-only
// access.
func (h *PageHandle) Unpin(isDirty bool) {
	f := &h.pool.frames[h.frameIdx]
	if isDirty {
		f.isDirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
}

// ReadPage returns a pinned handle to id, loading it from the
// underlying pager on a cache miss.
func (bp *BufferPool) ReadPage(id PageID) (*PageHandle, error) {
	if idx, ok := bp.frameMap[id]; ok {
		f := &bp.frames[idx]
		f.pinCount++
		f.refBit = true
		return &PageHandle{pool: bp, frameIdx: idx, id: id}, nil
	}

	idx, err := bp.installPage(id, true, nil)
	if err != nil {
		return nil, err
	}
	f := &bp.frames[idx]
	f.pinCount++
	f.refBit = true
	return &PageHandle{pool: bp, frameIdx: idx, id: id}, nil
}

// WritePage overwrites page id's cached content with data, without
// going to disk: if id is resident its buffer is overwritten in place
// and marked dirty; otherwise a victim frame is evicted and installed
// to hold id, then marked dirty. Eventual eviction or Flush persists it
// through the pager.
func (bp *BufferPool) WritePage(id PageID, data *PageBuffer) error {
	if idx, ok := bp.frameMap[id]; ok {
		f := &bp.frames[idx]
		f.buffer = *data
		f.isDirty = true
		f.refBit = true
		return nil
	}

	idx, err := bp.installPage(id, false, data)
	if err != nil {
		return err
	}
	bp.frames[idx].isDirty = true
	return nil
}

// installPage evicts a victim frame and installs id into it, either by
// reading id's content from the pager (fromDisk) or by copying data
// directly in. The returned frame has pinCount 0; callers that need a
// pin increment it themselves.
func (bp *BufferPool) installPage(id PageID, fromDisk bool, data *PageBuffer) (int, error) {
	idx, err := bp.findVictim()
	if err != nil {
		return 0, err
	}
	if err := bp.evict(idx); err != nil {
		return 0, err
	}

	f := &bp.frames[idx]
	switch {
	case fromDisk:
		buf, err := bp.pager.ReadPage(id)
		if err != nil {
			return 0, err
		}
		f.buffer = *buf
	case data != nil:
		f.buffer = *data
	default:
		f.buffer = PageBuffer{}
	}
	f.pageID = id
	f.pinCount = 0
	f.isDirty = false
	f.refBit = false
	bp.frameMap[id] = idx
	return idx, nil
}

// findVictim selects an eviction candidate using CLOCK: sweep frames
// from clockHand, skipping pinned ones, clearing ref bits on the first
// pass and returning the first frame found with ref bit already clear.
// A full second sweep that finds nothing means every frame is pinned.
func (bp *BufferPool) findVictim() (int, error) {
	n := len(bp.frames)
	start := bp.clockHand
	secondSweep := false

	for {
		idx := bp.clockHand
		f := &bp.frames[idx]
		if f.pinCount == 0 {
			if f.refBit {
				f.refBit = false
			} else {
				return idx, nil
			}
		}

		bp.clockHand = (bp.clockHand + 1) % n
		if bp.clockHand == start {
			if secondSweep {
				return 0, &AllPagesArePinnedError{}
			}
			secondSweep = true
		}
	}
}

// evict writes back idx's buffer if dirty and removes it from the
// frame map, leaving the frame ready to hold a different page.
func (bp *BufferPool) evict(idx int) error {
	f := &bp.frames[idx]
	if f.pinCount > 0 {
		return &TryToEvictPinnedPageError{ID: f.pageID}
	}
	if f.isDirty {
		if err := bp.pager.WritePage(f.pageID, &f.buffer); err != nil {
			return err
		}
		f.isDirty = false
	}
	if f.pageID != HeaderPageID {
		delete(bp.frameMap, f.pageID)
	}
	return nil
}

// AllocPage delegates to the underlying pager and refreshes the cached
// header snapshot.
func (bp *BufferPool) AllocPage() (PageID, error) {
	id, err := bp.pager.AllocPage()
	if err != nil {
		return 0, err
	}
	if err := bp.refreshHeader(); err != nil {
		return 0, err
	}
	return id, nil
}

// FreePage delegates to the underlying pager and refreshes the cached
// header snapshot.
func (bp *BufferPool) FreePage(id PageID) error {
	if err := bp.pager.FreePage(id); err != nil {
		return err
	}
	return bp.refreshHeader()
}

func (bp *BufferPool) refreshHeader() error {
	h, err := bp.pager.ReadHeader()
	if err != nil {
		return err
	}
	bp.header = h
	return nil
}

// Flush writes back every dirty resident frame through the underlying
// pager, regardless of pin state, without evicting it.
func (bp *BufferPool) Flush() error {
	for i := range bp.frames {
		f := &bp.frames[i]
		if f.pageID == HeaderPageID || !f.isDirty {
			continue
		}
		if err := bp.pager.WritePage(f.pageID, &f.buffer); err != nil {
			return err
		}
		f.isDirty = false
	}
	return nil
}
