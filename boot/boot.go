// Package boot is the kernel's second-stage driver: everything from "the
// bootloader just handed us a memory map" through "an init process is
// running in user mode". It runs once, in two halves split by the
// unrecoverable atomic CR3+RSP switch onto the kernel's own address
// space and stack.
package boot

import (
	"reflect"
	"unsafe"

	"substrate/apic"
	"substrate/bootinfo"
	"substrate/cpu"
	"substrate/gdt"
	"substrate/idt"
	"substrate/kspace"
	"substrate/kstack"
	"substrate/mem"
	"substrate/moddir"
	"substrate/process"
	"substrate/public"
	"substrate/syscall"
	"substrate/util"
)

// die disables interrupts and parks the CPU forever. Called on any
// unrecoverable failure during boot.
func die() {
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// transfer carries everything the post-switch half of boot needs that
// only the pre-switch half can compute, since the bootloader's own
// direct map (and therefore every pointer into its reclaimable memory)
// stops being valid the instant CR3 changes.
type transfer struct {
	ba                       mem.BootAllocator
	segments                 [bootinfo.MaxSegments]bootinfo.Segment
	segmentCount             int
	bootAllocatorSegmentBase uintptr
	kstackTopPhys            uintptr
	l4Phys                   uintptr
	initModulePhys           uintptr
	initModuleSize           uintptr
}

// entryTrampoline and followBoot are implemented in entry_amd64.s /
// below; entryTrampoline is the raw jump target, followBoot is the
// ordinarily-called Go function it immediately forwards into.
func entryTrampoline()

// Warn receives boot-time warnings (segment overflow, unsupported
// framebuffers) for whatever sink the caller has available — typically
// package bootlog, before a console exists.
type Warn func(format string, args ...any)

// Run merges the bootloader's memory map, lays out the kernel's own
// address space and the public data region, and then performs the
// one-way transfer onto the kernel's own stack and page tables. It never
// returns; the rest of boot happens in followBoot, reached by the
// transfer.
func Run(info bootinfo.Info, warn Warn) {
	segments, overflow := bootinfo.MergeSegments(info.Regions)
	if overflow > 0 {
		warn("too many memory segments from the bootloader; dropping %d", overflow)
	}
	if len(segments) > bootinfo.MaxSegments {
		segments = segments[:bootinfo.MaxSegments]
	}

	largest, ok := bootinfo.LargestUsable(segments)
	if !ok {
		die()
	}

	ba := mem.NewBootAllocator(largest.Base, largest.Length)

	detectedRAM := detectRAM(info.Regions)

	supported := filterFramebuffers(info.Framebuffers, warn)

	layout := public.ComputeLayout(uintptr(len(supported)))
	pubPhys, err := ba.Allocate(layout.Size, mem.PageSize)
	if err != nil {
		die()
	}
	writePublicData(pubPhys, layout, info.HHDMOffset, supported)

	l4Phys, err := kspace.Build(&ba, detectedRAM, kspace.Image{
		PhysStart: info.KernelPhysBase,
		VirtStart: info.KernelVirtBase,
		Size:      info.KernelImageSize,
	}, kspace.PublicData{Phys: pubPhys, Virt: public.VirtAddr, Size: layout.Size})
	if err != nil {
		die()
	}

	kstackTopPhys, err := kstack.Init(&ba)
	if err != nil {
		die()
	}

	modules := moddir.Build(info.Modules)
	initModule, ok := modules.Lookup(bootinfo.InitModuleName)
	if !ok {
		die()
	}

	t := transfer{
		ba:                       ba,
		segmentCount:             len(segments),
		bootAllocatorSegmentBase: largest.Base,
		kstackTopPhys:            kstackTopPhys,
		l4Phys:                   l4Phys,
		initModulePhys:           initModule.PhysAddr,
		initModuleSize:           initModule.Size,
	}
	copy(t.segments[:], segments)

	transferSize := unsafe.Sizeof(t)
	writeAddr := kstackTopPhys + info.HHDMOffset - transferSize
	*(*transfer)(unsafe.Pointer(writeAddr)) = t

	// The address the code on the other side of the switch will use to
	// reach the very same physical bytes, through the kernel's own direct
	// map rather than the bootloader's.
	newTransferAddr := kstackTopPhys + mem.HHDMOffset - transferSize

	cpu.SwitchStackAndEnter(l4Phys, newTransferAddr, funcAddr(entryTrampoline), newTransferAddr)
}

// funcAddr returns the entry address of a Go function value, for handing
// to code (assembly trampolines, MSRs) that only understands raw
// addresses.
func funcAddr(f func()) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// followBoot runs on the kernel's own stack and page tables. It brings
// up the GDT/IDT, seeds the physical page tracker, arms the LAPIC and
// syscall machinery, and finally loads and transfers control to the init
// process. It never returns.
func followBoot(transferPtr uintptr) {
	t := *(*transfer)(unsafe.Pointer(transferPtr))

	ba := t.ba

	if err := gdt.Init(&ba, t.kstackTopPhys); err != nil {
		die()
	}
	idt.Init(gdt.DoubleFaultStackIndex)

	var maxEnd uintptr
	for i := 0; i < t.segmentCount; i++ {
		end := t.segments[i].Base + t.segments[i].Length
		if end > maxEnd {
			maxEnd = end
		}
	}
	if maxEnd == 0 {
		die()
	}

	tracker, err := mem.NewTracker(int(maxEnd/mem.PageSize), &ba)
	if err != nil {
		die()
	}

	for i := 0; i < t.segmentCount; i++ {
		seg := t.segments[i]

		if seg.Base == t.bootAllocatorSegmentBase {
			diff := ba.Peek() - seg.Base
			seg.Base += diff
			seg.Length -= diff
		}

		start := util.Roundup(seg.Base, mem.PageSize)
		end := util.Rounddown(seg.Base+seg.Length, mem.PageSize)
		for start != end {
			tracker.MarkAsUnused(start)
			start += mem.PageSize
		}
	}

	memTok := mem.Init(tracker)

	syscall.SetPublicDataAddress(public.VirtAddr)
	syscall.Init(memTok, t.kstackTopPhys+mem.HHDMOffset)

	apic.Init()
	cpu.EnableInterrupts()

	loadInitProcess(t, memTok)
}

// loadInitProcess validates and maps the coreinit module, then transfers
// control to it with SYSRET. Never returns on success; dies on any
// validation or resource failure.
func loadInitProcess(t transfer, memTok mem.Tok) {
	image := unsafe.Slice((*byte)(mem.HHDMPointer(t.initModulePhys)), t.initModuleSize)

	header, err := process.ParseHeader(image)
	if err != nil {
		die()
	}

	allocPage := func() (uintptr, error) {
		locked := memTok.Global()
		tracker := locked.Lock()
		defer locked.Unlock()
		return tracker.Allocate()
	}

	newL4, err := process.Load(t.l4Phys, t.initModulePhys, t.initModuleSize, header, allocPage)
	if err != nil {
		die()
	}

	process.SetCurrent(process.Process{AddressSpace: newL4})

	cpu.EnterUserMode(newL4, header.EntryPoint, 0x202)
}

// detectRAM computes the highest physical address reported usable or
// reclaimable by the bootloader, which bounds how much memory the direct
// map and physical page tracker must be prepared to cover.
func detectRAM(regions []bootinfo.RawMemoryRegion) uintptr {
	var max uintptr
	for _, r := range regions {
		switch r.Type {
		case bootinfo.Usable, bootinfo.BootloaderReclaimable, bootinfo.ACPIReclaimable:
		default:
			continue
		}
		if end := r.Base + r.Length; end > max {
			max = end
		}
	}
	return max
}

// filterFramebuffers keeps only framebuffers the kernel knows how to
// describe to userland: RGB pixel layouts at 24 or 32 bits per pixel.
func filterFramebuffers(raw []bootinfo.RawFramebuffer, warn Warn) []bootinfo.RawFramebuffer {
	var out []bootinfo.RawFramebuffer
	for _, fb := range raw {
		if fb.RedMask == 0 || (fb.BitsPerPixel != 24 && fb.BitsPerPixel != 32) {
			warn("unsupported framebuffer %dx%d, %d bpp", fb.Width, fb.Height, fb.BitsPerPixel)
			continue
		}
		out = append(out, fb)
	}
	return out
}

// writePublicData initializes the public region's root structure and
// framebuffer array in place, addressed through the bootloader's own
// direct-map offset, which is the only mapping still valid at this point
// in boot.
func writePublicData(pubPhys uintptr, layout public.Layout, bootHHDM uintptr, framebuffers []bootinfo.RawFramebuffer) {
	root := (*public.Data)(unsafe.Pointer(pubPhys + layout.RootOffset + bootHHDM))
	*root = public.Data{
		Framebuffers:     public.VirtAddr + layout.FramebufferOffset,
		FramebufferCount: uintptr(len(framebuffers)),
	}

	base := pubPhys + layout.FramebufferOffset + bootHHDM
	for i, fb := range framebuffers {
		colorMode := public.ColorModeRGB24
		if fb.BitsPerPixel == 32 {
			colorMode = public.ColorModeRGB32
		}

		entry := (*public.Framebuffer)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(public.Framebuffer{})))
		*entry = public.Framebuffer{
			PhysAddr:  fb.PhysAddr,
			Width:     uintptr(fb.Width),
			Height:    uintptr(fb.Height),
			Pitch:     uintptr(fb.Pitch),
			ColorMode: colorMode,
		}
	}
}
