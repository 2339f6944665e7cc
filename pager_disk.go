package pagekv

import (
	"os"

	"github.com/ncw/directio"
)

// DiskPager owns the backing file for a paged database: the file
// header (free-list head + total page count), the intrusive free list
// threaded through page bodies, and growth by doubling when the list
// runs dry.
//
// Pages are read and written through directio.AlignedBlock buffers and
// a file opened for unbuffered I/O where the platform supports it
// (Linux's O_DIRECT); on platforms where that fails — a filesystem that
// doesn't support it, or a platform directio.OpenFile doesn't special
// case — DiskPager falls back to a normal buffered *os.File and relies
// on the explicit data-sync after every header/page write to make
// writes durable.
type DiskPager struct {
	*filePager
	file *os.File
}

// OpenDiskPager opens path for read/write, creating and formatting a
// fresh 10 MiB file if it does not already exist. An existing file's
// header is left untouched.
func OpenDiskPager(path string) (*DiskPager, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := openUnbuffered(path)
	if err != nil {
		return nil, &FileIOError{Op: "open", Path: path, Err: err}
	}

	dp := &DiskPager{file: f}
	dp.filePager = newFilePager(path, &diskFile{f}, allocAlignedPage)

	if !existed {
		if err := dp.WriteHeader(FileHeader{}); err != nil {
			f.Close()
			return nil, err
		}
		if err := dp.grow(DefaultFileNumPages - 1); err != nil {
			f.Close()
			return nil, err
		}
	}

	return dp, nil
}

// allocAlignedPage backs every page buffer with directio.AlignedBlock
// instead of a bare make([]byte, ...), so the same buffer can be handed
// straight to an O_DIRECT read or write without an extra copy.
func allocAlignedPage(size int) *PageBuffer {
	block := directio.AlignedBlock(size)
	return (*PageBuffer)(block)
}

// openUnbuffered tries to open path with O_DIRECT (or the platform's
// equivalent) via directio, and falls back to a normal buffered handle
// when the backend doesn't support it — e.g. tmpfs, or a platform
// directio treats as a no-op.
func openUnbuffered(path string) (*os.File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if f, err := directio.OpenFile(path, flag, 0o644); err == nil {
		return f, nil
	}
	return os.OpenFile(path, flag, 0o644)
}

// diskFile adapts *os.File to the backingFile interface, using a
// platform-specific data-sync (see pager_sync_linux.go /
// pager_sync_other.go) instead of the stronger, metadata-flushing
// fsync that os.File.Sync performs everywhere.
type diskFile struct {
	f *os.File
}

func (d *diskFile) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *diskFile) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *diskFile) Close() error                             { return d.f.Close() }
func (d *diskFile) Sync() error                              { return dataSync(d.f) }
