package blockdev

import "testing"

func TestMemDeviceReadBlockRoundTrips(t *testing.T) {
	data := make([]byte, 512*4)
	copy(data[512:1024], []byte("second block"))
	dev := NewMemDevice(data, 512)

	buf := make([]byte, 512)
	if err := dev.ReadBlock(1, buf); err != nil {
		t.Fatalf("ReadBlock(1) error = %v", err)
	}
	if string(buf[:12]) != "second block" {
		t.Fatalf("ReadBlock(1) = %q, want prefix %q", buf[:12], "second block")
	}
}

func TestMemDeviceReadBlockOutOfRangeErrors(t *testing.T) {
	dev := NewMemDevice(make([]byte, 512*2), 512)
	if err := dev.ReadBlock(5, make([]byte, 512)); err == nil {
		t.Fatal("expected an error reading past the end of the device")
	}
}

func TestNewMemDeviceRejectsMisalignedData(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for data not a multiple of blockSize")
		}
	}()
	NewMemDevice(make([]byte, 10), 512)
}
