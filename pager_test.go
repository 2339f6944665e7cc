package pagekv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenDiskPagerFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	dp, err := OpenDiskPager(path)
	if err != nil {
		t.Fatalf("OpenDiskPager() error = %v", err)
	}
	defer dp.Close()

	header, err := dp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.NumPages != DefaultFileNumPages-1 {
		t.Errorf("NumPages = %d, want %d", header.NumPages, DefaultFileNumPages-1)
	}
	if header.FreePageID != PageID(DefaultFileNumPages-1) {
		t.Errorf("FreePageID = %d, want %d", header.FreePageID, DefaultFileNumPages-1)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	wantSize := int64(DefaultFileNumPages) * PageSize
	if info.Size() != wantSize {
		t.Errorf("file size = %d, want %d", info.Size(), wantSize)
	}
}

func TestOpenDiskPagerPreservesExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.db")

	dp, err := OpenDiskPager(path)
	if err != nil {
		t.Fatalf("OpenDiskPager() error = %v", err)
	}
	id, err := dp.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage() error = %v", err)
	}
	dp.Close()

	reopened, err := OpenDiskPager(path)
	if err != nil {
		t.Fatalf("re-OpenDiskPager() error = %v", err)
	}
	defer reopened.Close()
	header, err := reopened.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.FreePageID == id {
		t.Errorf("FreePageID still points at the page allocated before reopen")
	}
}

func TestAllocFreeCycleReusesFreedPage(t *testing.T) {
	mp, err := OpenMemPager()
	if err != nil {
		t.Fatalf("OpenMemPager() error = %v", err)
	}
	defer mp.Close()

	id, err := mp.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage() error = %v", err)
	}
	if err := mp.FreePage(id); err != nil {
		t.Fatalf("FreePage() error = %v", err)
	}

	header, err := mp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.FreePageID != id {
		t.Errorf("FreePageID = %d, want freed page %d back at the head", header.FreePageID, id)
	}

	reused, err := mp.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage() error = %v", err)
	}
	if reused != id {
		t.Errorf("AllocPage() = %d, want the just-freed page %d", reused, id)
	}
}

func TestGrowDoublesWhenFreeListExhausted(t *testing.T) {
	mp, err := OpenMemPager()
	if err != nil {
		t.Fatalf("OpenMemPager() error = %v", err)
	}
	defer mp.Close()

	before, err := mp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}

	// Drain the entire free list.
	for i := uint64(0); i < before.NumPages; i++ {
		if _, err := mp.AllocPage(); err != nil {
			t.Fatalf("AllocPage() #%d error = %v", i, err)
		}
	}

	drained, err := mp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if drained.FreePageID != 0 {
		t.Fatalf("FreePageID = %d after draining, want 0", drained.FreePageID)
	}

	if _, err := mp.AllocPage(); err != nil {
		t.Fatalf("AllocPage() after exhaustion error = %v", err)
	}
	after, err := mp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if after.NumPages != 2*drained.NumPages {
		t.Errorf("NumPages = %d, want %d (doubled from %d)", after.NumPages, 2*drained.NumPages, drained.NumPages)
	}
}

func TestReadPageRejectsOutOfRangeID(t *testing.T) {
	mp, err := OpenMemPager()
	if err != nil {
		t.Fatalf("OpenMemPager() error = %v", err)
	}
	defer mp.Close()

	header, err := mp.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}

	_, err = mp.ReadPage(PageID(header.NumPages + 1000))
	if _, ok := err.(*InvalidPageIDError); !ok {
		t.Errorf("ReadPage() error = %v, want *InvalidPageIDError", err)
	}
}

func TestWritePageRoundTrip(t *testing.T) {
	mp, err := OpenMemPager()
	if err != nil {
		t.Fatalf("OpenMemPager() error = %v", err)
	}
	defer mp.Close()

	id, err := mp.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage() error = %v", err)
	}

	var buf PageBuffer
	copy(buf[:], "hello, page")
	if err := mp.WritePage(id, &buf); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	got, err := mp.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if *got != buf {
		t.Errorf("ReadPage() did not round-trip WritePage()'s content")
	}
}
