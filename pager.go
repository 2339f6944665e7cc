package pagekv

import (
	"io"
)

// PageID identifies a page within a paged file. 0 is reserved for the
// file header page and also signals end-of-list in the free-list next
// pointer, so no user page ever has id 0.
type PageID uint64

// HeaderPageID is the fixed identifier of the file header page.
const HeaderPageID PageID = 0

// DefaultFileNumPages is the total number of pages, header included, a
// freshly created file starts with: the header page plus 2559 free
// pages makes a file of exactly 10 MiB at the 4096-byte page size.
const DefaultFileNumPages = 2560

// FileHeader occupies page 0 of every paged file.
type FileHeader struct {
	FreePageID PageID
	NumPages   uint64
}

// FreePage is the content of any page currently on the free list. Only
// NextFreePageID is meaningful; the rest of the page is undefined.
type FreePage struct {
	NextFreePageID PageID
}

// backingFile is the minimal capability a Pager needs from its storage
// medium: positioned reads and writes, an explicit data-sync, and
// close. DiskPager and MemPager each adapt a different concrete type to
// this shape. filePager calls its file through this interface, and
// BufferPool calls its backend through the Pager interface below, so
// both go through dynamic dispatch; neither is parameterized statically
// over its backend.
type backingFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

// Pager is the capability set a BufferPool requires of its storage
// backend: read/write whole pages, and allocate/free them through the
// backend's free list. DiskPager is the production implementation;
// MemPager is a disk-free stand-in used by tests and embedding
// scenarios that don't want a real file.
type Pager interface {
	ReadHeader() (FileHeader, error)
	WriteHeader(h FileHeader) error
	ReadPage(id PageID) (*PageBuffer, error)
	WritePage(id PageID, buf *PageBuffer) error
	AllocPage() (PageID, error)
	FreePage(id PageID) error
	Close() error
}

// filePager implements the Pager contract purely in terms of a
// backingFile, so DiskPager and MemPager differ only in how they open
// and allocate that backingFile.
type filePager struct {
	path  string // empty for in-memory backends; used only for error context
	file  backingFile
	alloc func(size int) *PageBuffer
}

func newFilePager(path string, file backingFile, alloc func(size int) *PageBuffer) *filePager {
	if alloc == nil {
		alloc = func(int) *PageBuffer { return new(PageBuffer) }
	}
	return &filePager{path: path, file: file, alloc: alloc}
}

func (p *filePager) ioErr(op string, offset int64, err error) error {
	return &FileIOError{Op: op, Path: p.path, Offset: offset, Err: err}
}

func (p *filePager) ReadHeader() (FileHeader, error) {
	buf := p.alloc(PageSize)
	if _, err := p.file.ReadAt(buf[:], 0); err != nil {
		return FileHeader{}, p.ioErr("read header", 0, err)
	}
	h, err := Decode[FileHeader](buf)
	if err != nil {
		return FileHeader{}, err
	}
	return h, nil
}

func (p *filePager) WriteHeader(h FileHeader) error {
	buf := p.alloc(PageSize)
	if err := Encode(h, buf); err != nil {
		return err
	}
	if _, err := p.file.WriteAt(buf[:], 0); err != nil {
		return p.ioErr("write header", 0, err)
	}
	if err := p.file.Sync(); err != nil {
		return p.ioErr("sync header", 0, err)
	}
	return nil
}

func (p *filePager) ReadPage(id PageID) (*PageBuffer, error) {
	header, err := p.ReadHeader()
	if err != nil {
		return nil, err
	}
	if uint64(id) > header.NumPages {
		return nil, &InvalidPageIDError{ID: id, NumPages: header.NumPages}
	}
	offset := int64(id) * PageSize
	buf := p.alloc(PageSize)
	if _, err := p.file.ReadAt(buf[:], offset); err != nil {
		return nil, p.ioErr("read page", offset, err)
	}
	return buf, nil
}

func (p *filePager) WritePage(id PageID, buf *PageBuffer) error {
	header, err := p.ReadHeader()
	if err != nil {
		return err
	}
	if uint64(id) > header.NumPages {
		return &InvalidPageIDError{ID: id, NumPages: header.NumPages}
	}
	offset := int64(id) * PageSize
	out := p.alloc(PageSize)
	*out = *buf
	if _, err := p.file.WriteAt(out[:], offset); err != nil {
		return p.ioErr("write page", offset, err)
	}
	if err := p.file.Sync(); err != nil {
		return p.ioErr("sync page", offset, err)
	}
	return nil
}

// grow appends n pages beyond end-of-file, chaining them as a LIFO free
// list: the most recently appended page becomes the new free-list head,
// so it is the next one handed out by AllocPage.
func (p *filePager) grow(n uint64) error {
	header, err := p.ReadHeader()
	if err != nil {
		return err
	}

	prevHead := header.FreePageID
	startOffset := int64(header.NumPages+1) * PageSize

	buf := p.alloc(PageSize)
	nextID := prevHead
	for i := uint64(1); i <= n; i++ {
		free := FreePage{NextFreePageID: nextID}
		if err := Encode(free, buf); err != nil {
			return err
		}
		offset := startOffset + int64(i-1)*PageSize
		if _, err := p.file.WriteAt(buf[:], offset); err != nil {
			return p.ioErr("grow", offset, err)
		}
		nextID = PageID(header.NumPages + i)
	}

	header.FreePageID = nextID
	header.NumPages += n
	return p.WriteHeader(header)
}

func (p *filePager) AllocPage() (PageID, error) {
	header, err := p.ReadHeader()
	if err != nil {
		return 0, err
	}
	if header.FreePageID == 0 {
		if err := p.grow(header.NumPages); err != nil {
			return 0, err
		}
		header, err = p.ReadHeader()
		if err != nil {
			return 0, err
		}
	}

	head := header.FreePageID
	freeBuf, err := p.ReadPage(head)
	if err != nil {
		return 0, err
	}
	free, err := Decode[FreePage](freeBuf)
	if err != nil {
		return 0, err
	}

	header.FreePageID = free.NextFreePageID
	if err := p.WriteHeader(header); err != nil {
		return 0, err
	}
	return head, nil
}

func (p *filePager) FreePage(id PageID) error {
	header, err := p.ReadHeader()
	if err != nil {
		return err
	}
	if uint64(id) > header.NumPages {
		return &InvalidPageIDError{ID: id, NumPages: header.NumPages}
	}

	free := FreePage{NextFreePageID: header.FreePageID}
	buf := p.alloc(PageSize)
	if err := Encode(free, buf); err != nil {
		return err
	}
	if err := p.WritePage(id, buf); err != nil {
		return err
	}

	header.FreePageID = id
	return p.WriteHeader(header)
}

func (p *filePager) Close() error {
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}
