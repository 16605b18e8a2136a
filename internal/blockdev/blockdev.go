// Package blockdev names the one block-device contract spec.md's
// Non-goals call out ("device drivers beyond one block device contract")
// this kernel needs to load the init program's ELF image from disk. Like
// internal/sbi, it is a contract only: no driver lives in this package.
package blockdev

// Device is the minimal block-device surface the init-loading path in
// cmd/kernel needs: read-only, fixed block size, addressed by block
// number rather than byte offset (matching the virtio-blk/SD-card style
// interface spec.md's target boards expose).
type Device interface {
	// BlockSize reports the device's fixed block size in bytes.
	BlockSize() int
	// ReadBlock reads one block at the given block number into dst,
	// which must be at least BlockSize() bytes.
	ReadBlock(blockNum int, dst []byte) error
}
