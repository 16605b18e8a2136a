package syscall

import (
	"rvkernel/internal/addr"
	"rvkernel/internal/defs"
	"rvkernel/internal/kalloc"
	"rvkernel/internal/klog"
	"rvkernel/internal/pagetable"
)

func init() { Register(defs.SysVendor, sysVendor) }

// sysVendor is the vendor/test syscall number 511: it reads a
// possibly cross-page user string at args[0] of length args[1] and
// logs it together with the remaining four arguments. Ground: the
// distilled spec's "test syscall (511)" entry traces back to a
// string-spanning-pages test call in the original implementation;
// TranslatedByteBuffers is exactly the scatter-read primitive that
// call needs, exercised nowhere else in the minimum handler set.
func sysVendor(args [6]uint64) int64 {
	va := addr.VirtAddr(args[0])
	length := int(args[1])

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
	token := res.MemSet.Token()
	tcb.Unlock()

	chunks, err := pagetable.TranslatedByteBuffers(token, va, length)
	if err != nil {
		return defs.EFAULT.Neg()
	}

	// The gathered buffer outlives the per-chunk slices TranslatedByteBuffers
	// hands back (each aliases a live user page), so it comes from the
	// kernel heap rather than a plain make(), the same way a real kernel
	// would assemble a scatter/gather read into its own owned memory.
	buf := kalloc.Alloc(length)[:0]
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	defer kalloc.Free(buf[:cap(buf)])

	klog.Infof("vendor test: %s", string(buf))
	klog.Infof("vendor test args: arg2=%d arg3=%d arg4=%d arg5=%d", args[2], args[3], args[4], args[5])
	return 0
}
