package syscall

import (
	"rvkernel/internal/addr"
	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
)

func init() { Register(defs.SysWrite, sysWrite) }

// ring is a fixed-capacity byte queue sysWrite drains through a fd's
// Write one full chunk at a time rather than one user-copy call per
// syscall-sized write. Ground: biscuit's circbuf.Circbuf_t
// (circbuf/circbuf.go), simplified from its lazily-allocated
// mem.Page_i-backed storage to a plain fixed array — syscall handlers
// have no page allocator of their own to back a buffer with, unlike
// the console driver circbuf.Circbuf_t itself serves in biscuit.
type ring struct {
	buf        [ringCapacity]byte
	head, tail int // tail <= head <= tail+len(buf); indices only ever grow
}

const ringCapacity = 4096

func (r *ring) used() int { return r.head - r.tail }
func (r *ring) free() int { return len(r.buf) - r.used() }

// fill copies as much of p into the ring as there is room for,
// reporting how many bytes it accepted.
func (r *ring) fill(p []byte) int {
	n := len(p)
	if room := r.free(); n > room {
		n = room
	}
	for i := 0; i < n; i++ {
		r.buf[(r.head+i)%len(r.buf)] = p[i]
	}
	r.head += n
	return n
}

// drainTo writes every buffered byte out through w, one contiguous
// run at a time, and empties the ring.
func (r *ring) drainTo(w func([]byte) (int, error)) error {
	for r.used() > 0 {
		start := r.tail % len(r.buf)
		n := r.used()
		if room := len(r.buf) - start; n > room {
			n = room
		}
		if _, err := w(r.buf[start : start+n]); err != nil {
			return err
		}
		r.tail += n
	}
	return nil
}

// sysWrite copies up to args[2] bytes from the user buffer at args[1]
// through a bounded kernel ring and out to fd args[0]'s Write, in
// ringCapacity-sized chunks so one write syscall never pins more than
// one ring's worth of kernel memory regardless of the user-requested
// length.
func sysWrite(args [6]uint64) int64 {
	fd := int(args[0])
	srcVA := addr.VirtAddr(args[1])
	length := int(args[2])
	if length < 0 {
		return defs.EFAULT.Neg()
	}

	tcb := currentTask()
	if tcb == nil {
		return defs.EFAULT.Neg()
	}
	inner := tcb.Lock()
	res := inner.Resources
	if res == nil {
		tcb.Unlock()
		return defs.EFAULT.Neg()
	}
	fdops, ok := res.Group.Fds.Get(fd)
	token := res.MemSet.Token()
	tcb.Unlock()
	if !ok {
		return defs.EBADF.Neg()
	}

	var r ring
	var scratch [ringCapacity]byte
	written := 0
	for written < length {
		chunk := length - written
		if chunk > ringCapacity {
			chunk = ringCapacity
		}
		if err := pagetable.CopyFromUser(token, scratch[:chunk], addr.VirtAddr(uint64(srcVA)+uint64(written))); err != nil {
			return defs.EFAULT.Neg()
		}
		r.fill(scratch[:chunk])
		if err := r.drainTo(fdops.Write); err != nil {
			return defs.EFAULT.Neg()
		}
		written += chunk
	}
	return int64(written)
}
