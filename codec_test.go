package pagekv

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := FileHeader{FreePageID: 42, NumPages: 2559}
	var buf PageBuffer
	if err := Encode(want, &buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode[FileHeader](&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
}

func TestEncodeLeavesTrailingBytesUntouched(t *testing.T) {
	var buf PageBuffer
	buf[100] = 0xAB
	if err := Encode(FileHeader{FreePageID: 1, NumPages: 1}, &buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if buf[100] != 0xAB {
		t.Errorf("Encode() touched byte beyond the encoded struct's width")
	}
}
