package idt

import "reflect"

// Each of these is a tiny assembly entry point (see stubs_amd64.s) that
// saves the general-purpose registers, pushes its own vector number,
// and jumps to the shared Go dispatch routine in dispatch.go.
func stubDivisionError()
func stubDebug()
func stubNMI()
func stubBreakpoint()
func stubOverflow()
func stubBoundRange()
func stubInvalidOpcode()
func stubDeviceNA()
func stubDoubleFault()
func stubInvalidTSS()
func stubSegNotPresent()
func stubStackSegFault()
func stubGPF()
func stubPageFault()
func stubX87FP()
func stubAlignCheck()
func stubMachineCheck()
func stubSIMDFP()
func stubVirt()
func stubCtrlProt()
func stubHVInjection()
func stubVMMComm()
func stubSecurity()
func stubLapicSpurious()
func stubLapicTimer()

func funcAddr(f any) uintptr {
	return reflect.ValueOf(f).Pointer()
}

func stubAddr(vector int) uintptr {
	switch vector {
	case DivisionError:
		return funcAddr(stubDivisionError)
	case Debug:
		return funcAddr(stubDebug)
	case NonMaskableInterrupt:
		return funcAddr(stubNMI)
	case Breakpoint:
		return funcAddr(stubBreakpoint)
	case Overflow:
		return funcAddr(stubOverflow)
	case BoundRangeExceeded:
		return funcAddr(stubBoundRange)
	case InvalidOpcode:
		return funcAddr(stubInvalidOpcode)
	case DeviceNotAvailable:
		return funcAddr(stubDeviceNA)
	case DoubleFault:
		return funcAddr(stubDoubleFault)
	case InvalidTSS:
		return funcAddr(stubInvalidTSS)
	case SegmentNotPresent:
		return funcAddr(stubSegNotPresent)
	case StackSegmentFault:
		return funcAddr(stubStackSegFault)
	case GeneralProtectionFault:
		return funcAddr(stubGPF)
	case PageFault:
		return funcAddr(stubPageFault)
	case X87FloatingPoint:
		return funcAddr(stubX87FP)
	case AlignmentCheck:
		return funcAddr(stubAlignCheck)
	case MachineCheck:
		return funcAddr(stubMachineCheck)
	case SIMDFloatingPoint:
		return funcAddr(stubSIMDFP)
	case Virtualization:
		return funcAddr(stubVirt)
	case ControlProtection:
		return funcAddr(stubCtrlProt)
	case HypervisorInjection:
		return funcAddr(stubHVInjection)
	case VMMCommunication:
		return funcAddr(stubVMMComm)
	case Security:
		return funcAddr(stubSecurity)
	default:
		panic("idt: no stub registered for vector")
	}
}

func lapicSpuriousStubAddr() uintptr { return funcAddr(stubLapicSpurious) }
func lapicTimerStubAddr() uintptr    { return funcAddr(stubLapicTimer) }
