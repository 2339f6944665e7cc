//go:build linux

package pagekv

import (
	"os"

	"golang.org/x/sys/unix"
)

// dataSync flushes file content (not metadata) to stable storage, the
// "Data-sync" primitive spec.md §5 builds its ordering guarantees on.
// fdatasync skips the inode metadata flush fsync(2) performs, which
// matters for a single hot file being written page by page.
func dataSync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
