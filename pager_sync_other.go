//go:build !linux

package pagekv

import "os"

// dataSync falls back to the portable fsync on platforms without a
// distinct fdatasync syscall exposed through golang.org/x/sys/unix.
func dataSync(f *os.File) error {
	return f.Sync()
}
