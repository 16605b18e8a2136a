package blockdev

import "fmt"

// MemDevice is an in-memory Device backed by a flat byte slice, used by
// tests in lieu of a real virtio-blk/SD driver.
type MemDevice struct {
	blockSize int
	data      []byte
}

// NewMemDevice wraps data as a Device with the given block size. len(data)
// must be a multiple of blockSize.
func NewMemDevice(data []byte, blockSize int) *MemDevice {
	if len(data)%blockSize != 0 {
		panic("blockdev: data length is not a multiple of blockSize")
	}
	return &MemDevice{blockSize: blockSize, data: data}
}

// BlockSize returns the device's fixed block size.
func (d *MemDevice) BlockSize() int { return d.blockSize }

// ReadBlock copies block blockNum into dst.
func (d *MemDevice) ReadBlock(blockNum int, dst []byte) error {
	start := blockNum * d.blockSize
	if start < 0 || start+d.blockSize > len(d.data) {
		return fmt.Errorf("blockdev: block %d out of range", blockNum)
	}
	n := copy(dst, d.data[start:start+d.blockSize])
	if n < d.blockSize {
		return fmt.Errorf("blockdev: dst shorter than block size (%d < %d)", n, d.blockSize)
	}
	return nil
}
