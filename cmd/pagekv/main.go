// Command pagekv is a thin driver that opens (creating if necessary) a
// paged database file. It exists to exercise pagekv.OpenDiskPager from
// outside the test suite; the storage engine itself lives in the
// parent package.
package main

import (
	"fmt"
	"os"

	"github.com/tinykvs/pagekv"
)

func main() {
	path := "./test.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	dp, err := pagekv.OpenDiskPager(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagekv: %v\n", err)
		os.Exit(1)
	}
	defer dp.Close()

	header, err := dp.ReadHeader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagekv: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d pages, free list head %d\n", path, header.NumPages, header.FreePageID)
}
