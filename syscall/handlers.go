package syscall

import (
	"substrate/cpu"
	"substrate/defs"
	"substrate/mem"
	"substrate/paging"
	"substrate/process"
	"substrate/public"
)

// currentProcess resolves a process ID argument to the process it names.
// Only 0 (the caller itself) is presently supported; every syscall that
// takes a process ID rejects any other value.
func currentProcess(pid uintptr) (*process.Process, bool) {
	if pid != 0 {
		return nil, false
	}
	return process.Current(), true
}

func terminate(pid, _, _, _, _, _ uintptr) uintptr {
	_ = pid
	panic("syscall: terminate is not implemented")
}

func mapMemory(pid, virt, length, rawFlags, _, _ uintptr) uintptr {
	proc, ok := currentProcess(pid)
	if !ok {
		return defs.Err(defs.InvalidProcessID).Encode()
	}

	if virt%mem.PageSize != 0 || length%mem.PageSize != 0 {
		return defs.Err(defs.InvalidValue).Encode()
	}
	if saturatingAdd(virt, length) > mem.UserTop {
		return defs.Err(defs.InvalidValue).Encode()
	}
	flags, ok := defs.ParseMapFlags(rawFlags)
	if !ok {
		return defs.Err(defs.InvalidValue).Encode()
	}

	pageFlags := paging.User
	if flags&defs.Writable != 0 {
		pageFlags |= paging.Writable
	}
	if flags&defs.Executable == 0 {
		pageFlags |= paging.NoExecute
	}

	locked := memTok.Global()
	tracker := locked.Lock()
	defer locked.Unlock()

	l4 := (*paging.Table)(mem.HHDMPointer(proc.AddressSpace))
	allocPage := paging.AllocPage(tracker.Allocate)

	for length != 0 {
		phys, err := tracker.Allocate()
		if err != nil {
			return defs.Err(defs.OutOfMemory).Encode()
		}
		if err := paging.Map4K(l4, mem.HHDMOffset, allocPage, virt, phys, pageFlags); err != nil {
			return defs.Err(defs.OutOfMemory).Encode()
		}
		cpu.InvalidatePage(virt)

		length -= mem.PageSize
		virt += mem.PageSize
	}

	return defs.Ok(0).Encode()
}

func unmapMemory(pid, virt, length, _, _, _ uintptr) uintptr {
	proc, ok := currentProcess(pid)
	if !ok {
		return defs.Err(defs.InvalidProcessID).Encode()
	}

	if virt%mem.PageSize != 0 || length%mem.PageSize != 0 {
		return defs.Err(defs.InvalidValue).Encode()
	}
	if saturatingAdd(virt, length) > mem.UserTop {
		return defs.Err(defs.InvalidValue).Encode()
	}

	l4 := (*paging.Table)(mem.HHDMPointer(proc.AddressSpace))

	for length != 0 {
		// Unmapping a page that was never mapped is not an error; only a
		// page that really was mapped gets returned to the tracker.
		phys, _, _ := paging.Walk4K(l4, mem.HHDMOffset, virt)
		err := paging.Unmap4K(l4, mem.HHDMOffset, virt)
		if err == nil {
			tracker := memTok.Global().Lock()
			tracker.MarkAsUnused(phys)
			memTok.Global().Unlock()
		} else if !paging.IsNotMapped(err) {
			return defs.Err(defs.OutOfMemory).Encode()
		}

		cpu.InvalidatePage(virt)
		virt += mem.PageSize
		length -= mem.PageSize
	}

	return defs.Ok(0).Encode()
}

// publicDataAddr is the final kernel virtual address of the mapped public
// region; installed once during boot.
var publicDataAddr uintptr

// SetPublicDataAddress records where the public region is mapped. Must be
// called once, before the first acquire/release_framebuffer syscall.
func SetPublicDataAddress(addr uintptr) { publicDataAddr = addr }

func acquireFramebuffer(pid, index, at, _, _, _ uintptr) uintptr {
	proc, ok := currentProcess(pid)
	if !ok {
		return defs.Err(defs.InvalidProcessID).Encode()
	}

	fb := public.FramebufferAt(publicDataAddr, index)
	if fb == nil {
		return defs.Err(defs.InvalidValue).Encode()
	}

	if !fb.OwnedBy.CompareAndSwap(0, pid) {
		return defs.Err(defs.Conflict).Encode()
	}

	locked := memTok.Global()
	tracker := locked.Lock()
	defer locked.Unlock()

	l4 := (*paging.Table)(mem.HHDMPointer(proc.AddressSpace))
	allocPage := paging.AllocPage(tracker.Allocate)

	size := fb.SizeInBytes()
	addr := fb.PhysAddr
	for size != 0 {
		if err := paging.Map4K(l4, mem.HHDMOffset, allocPage, at, addr,
			paging.User|paging.Writable|paging.NoExecute); err != nil {
			// Ownership is intentionally not rolled back: a partial map
			// failure here is an accepted edge case.
			return defs.Err(defs.OutOfMemory).Encode()
		}
		cpu.InvalidatePage(at)

		size -= mem.PageSize
		at += mem.PageSize
		addr += mem.PageSize
	}

	return defs.Ok(0).Encode()
}

func releaseFramebuffer(pid, index, _, _, _, _ uintptr) uintptr {
	_, ok := currentProcess(pid)
	if !ok {
		return defs.Err(defs.InvalidProcessID).Encode()
	}

	fb := public.FramebufferAt(publicDataAddr, index)
	if fb == nil {
		return defs.Err(defs.InvalidValue).Encode()
	}

	// TODO: the mapping is not yet torn down.
	if !fb.OwnedBy.CompareAndSwap(pid, 0) {
		return defs.Err(defs.Conflict).Encode()
	}

	return defs.Ok(0).Encode()
}

// saturatingAdd adds a and b, clamping to the maximum uintptr on overflow
// rather than wrapping.
func saturatingAdd(a, b uintptr) uintptr {
	sum := a + b
	if sum < a {
		return ^uintptr(0)
	}
	return sum
}
