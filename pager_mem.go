package pagekv

import "github.com/dsnet/golib/memfile"

// MemPager is a disk-free realization of the Pager contract, backed by
// an in-memory file from dsnet/golib/memfile instead of an *os.File. It
// exercises exactly the same free-list and growth code as DiskPager
// (both are thin wrappers around filePager) and exists for tests and
// embedding scenarios that want the engine's semantics without a real
// file — the role the teacher's hand-rolled, sync.Map-backed
// ParentBufMgrDummy played, now filled by a real shared library against
// the same io.ReaderAt/io.WriterAt contract DiskPager already uses.
type MemPager struct {
	*filePager
}

// OpenMemPager creates a fresh, already-formatted in-memory paged file:
// same zeroed header and initial 2559-page free list a fresh DiskPager
// would produce, just never touching the filesystem.
func OpenMemPager() (*MemPager, error) {
	mp := &MemPager{filePager: newFilePager("<mem>", &memFile{memfile.New(nil)}, nil)}
	if err := mp.WriteHeader(FileHeader{}); err != nil {
		return nil, err
	}
	if err := mp.grow(DefaultFileNumPages - 1); err != nil {
		return nil, err
	}
	return mp, nil
}

// memFile adapts *memfile.File to backingFile: memfile already
// implements ReadAt/WriteAt/Close, so only Sync needs to be supplied.
// An in-memory file has nothing to flush, but the no-op still marks
// the durability boundary every caller of Pager expects to be able to
// rely on.
type memFile struct {
	*memfile.File
}

func (m *memFile) Sync() error { return nil }
