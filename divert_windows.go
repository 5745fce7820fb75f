//go:build windows

package divert

import (
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// proc is an exported function of a loaded WinDivert image.
type proc interface {
	Find() error
	Call(a ...uintptr) (r1, r2 uintptr, lastErr error)
}

// DLLBackend drives WinDivert through the exports of its DLL, loaded from
// disk or from memory.
type DLLBackend struct {
	system

	open          proc
	close         proc
	recv          proc
	recvEx        proc
	send          proc
	sendEx        proc
	shutdown      proc
	getParam      proc
	setParam      proc
	parsePacket   proc
	calcChecksums proc
	compileFilter proc
	evalFilter    proc

	release func() error
}

func newDLLBackend(lookup func(name string) proc, release func() error) (*DLLBackend, error) {
	b := &DLLBackend{release: release}
	procs := []struct {
		name string
		p    *proc
	}{
		{"WinDivertOpen", &b.open},
		{"WinDivertClose", &b.close},
		{"WinDivertRecv", &b.recv},
		{"WinDivertRecvEx", &b.recvEx},
		{"WinDivertSend", &b.send},
		{"WinDivertSendEx", &b.sendEx},
		{"WinDivertShutdown", &b.shutdown},
		{"WinDivertGetParam", &b.getParam},
		{"WinDivertSetParam", &b.setParam},
		{"WinDivertHelperParsePacket", &b.parsePacket},
		{"WinDivertHelperCalcChecksums", &b.calcChecksums},
		{"WinDivertHelperCompileFilter", &b.compileFilter},
		{"WinDivertHelperEvalFilter", &b.evalFilter},
	}
	for _, v := range procs {
		p := lookup(v.name)
		if err := p.Find(); err != nil {
			return nil, err
		}
		*v.p = p
	}
	return b, nil
}

// Release unloads the DLL image when it was loaded from memory.
func (b *DLLBackend) Release() error {
	if b.release == nil {
		return nil
	}
	return b.release()
}

func callError(lastErr error) error {
	if errno, ok := lastErr.(syscall.Errno); ok && errno != 0 {
		return errno
	}
	return windows.ERROR_GEN_FAILURE
}

func bufferPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func (b *DLLBackend) Open(filter string, layer Layer, priority int16, flags uint64) (RawHandle, error) {
	filterPtr, err := windows.BytePtrFromString(filter)
	if err != nil {
		return InvalidRawHandle, err
	}

	args := []uintptr{uintptr(unsafe.Pointer(filterPtr)), uintptr(layer), uintptr(priority)}
	args = append(args, u64(flags)...)

	runtime.LockOSThread()
	hd, _, lastErr := b.open.Call(args...)
	runtime.UnlockOSThread()

	if windows.Handle(hd) == windows.InvalidHandle {
		return InvalidRawHandle, callError(lastErr)
	}
	return RawHandle(hd), nil
}

func (b *DLLBackend) Close(h RawHandle) error {
	if r, _, lastErr := b.close.Call(uintptr(h)); r == 0 {
		return callError(lastErr)
	}
	return nil
}

func (b *DLLBackend) Recv(h RawHandle, buffer []byte, address *Address) (uint, error) {
	n := uint32(0)
	r, _, lastErr := b.recv.Call(uintptr(h), bufferPtr(buffer), uintptr(len(buffer)), uintptr(unsafe.Pointer(&n)), uintptr(unsafe.Pointer(address)))
	if r == 0 {
		return 0, callError(lastErr)
	}
	return uint(n), nil
}

// RecvEx leaves pRecvLen and pAddrLen unset; an overlapped transfer length
// is read back from the overlapped record.
func (b *DLLBackend) RecvEx(h RawHandle, buffer []byte, address *Address, ov *Overlapped) (uint, error) {
	n := uint32(0)
	recvLen := uintptr(unsafe.Pointer(&n))
	if ov != nil {
		recvLen = 0
	}

	args := []uintptr{uintptr(h), bufferPtr(buffer), uintptr(len(buffer)), recvLen}
	args = append(args, u64(0)...)
	args = append(args, uintptr(unsafe.Pointer(address)), 0, uintptr(unsafe.Pointer(ov)))

	r, _, lastErr := b.recvEx.Call(args...)
	if r == 0 {
		return 0, callError(lastErr)
	}
	if ov != nil {
		return uint(ov.InternalHigh), nil
	}
	return uint(n), nil
}

func (b *DLLBackend) Send(h RawHandle, buffer []byte, address *Address) (uint, error) {
	n := uint32(0)
	r, _, lastErr := b.send.Call(uintptr(h), bufferPtr(buffer), uintptr(len(buffer)), uintptr(unsafe.Pointer(&n)), uintptr(unsafe.Pointer(address)))
	if r == 0 {
		return 0, callError(lastErr)
	}
	return uint(n), nil
}

func (b *DLLBackend) SendEx(h RawHandle, buffer []byte, address *Address, ov *Overlapped) (uint, error) {
	n := uint32(0)
	sendLen := uintptr(unsafe.Pointer(&n))
	if ov != nil {
		sendLen = 0
	}

	args := []uintptr{uintptr(h), bufferPtr(buffer), uintptr(len(buffer)), sendLen}
	args = append(args, u64(0)...)
	args = append(args, uintptr(unsafe.Pointer(address)), uintptr(AddressSize), uintptr(unsafe.Pointer(ov)))

	r, _, lastErr := b.sendEx.Call(args...)
	if r == 0 {
		return 0, callError(lastErr)
	}
	if ov != nil {
		return uint(ov.InternalHigh), nil
	}
	return uint(n), nil
}

func (b *DLLBackend) Shutdown(h RawHandle, how Shutdown) error {
	if r, _, lastErr := b.shutdown.Call(uintptr(h), uintptr(how)); r == 0 {
		return callError(lastErr)
	}
	return nil
}

func (b *DLLBackend) GetParam(h RawHandle, p Param) (uint64, error) {
	v := uint64(0)
	if r, _, lastErr := b.getParam.Call(uintptr(h), uintptr(p), uintptr(unsafe.Pointer(&v))); r == 0 {
		return 0, callError(lastErr)
	}
	return v, nil
}

func (b *DLLBackend) SetParam(h RawHandle, p Param, v uint64) error {
	args := append([]uintptr{uintptr(h), uintptr(p)}, u64(v)...)
	if r, _, lastErr := b.setParam.Call(args...); r == 0 {
		return callError(lastErr)
	}
	return nil
}

// ParsePacket turns the header pointers returned by the engine into
// sub-slices of buffer.
func (b *DLLBackend) ParsePacket(buffer []byte) (Packet, bool) {
	var (
		ipv4, ipv6, icmp, icmpv6, tcp, udp, data, next uintptr
		protocol                                       uint8
		dataLen, nextLen                               uint32
	)
	r, _, _ := b.parsePacket.Call(
		bufferPtr(buffer), uintptr(len(buffer)),
		uintptr(unsafe.Pointer(&ipv4)), uintptr(unsafe.Pointer(&ipv6)),
		uintptr(unsafe.Pointer(&protocol)),
		uintptr(unsafe.Pointer(&icmp)), uintptr(unsafe.Pointer(&icmpv6)),
		uintptr(unsafe.Pointer(&tcp)), uintptr(unsafe.Pointer(&udp)),
		uintptr(unsafe.Pointer(&data)), uintptr(unsafe.Pointer(&dataLen)),
		uintptr(unsafe.Pointer(&next)), uintptr(unsafe.Pointer(&nextLen)),
	)

	base := bufferPtr(buffer)
	slice := func(ptr uintptr, n int) []byte {
		if ptr == 0 || ptr < base || ptr > base+uintptr(len(buffer)) {
			return nil
		}
		off := int(ptr - base)
		if n < 0 || off+n > len(buffer) {
			return buffer[off:]
		}
		return buffer[off : off+n]
	}
	p := Packet{
		IPv4:     slice(ipv4, -1),
		IPv6:     slice(ipv6, -1),
		Protocol: protocol,
		ICMP:     slice(icmp, -1),
		ICMPv6:   slice(icmpv6, -1),
		TCP:      slice(tcp, -1),
		UDP:      slice(udp, -1),
		Payload:  slice(data, int(dataLen)),
		Next:     slice(next, int(nextLen)),
	}
	return p, r != 0
}

func (b *DLLBackend) CalcChecksums(buffer []byte, address *Address, flags ChecksumFlag) bool {
	args := []uintptr{bufferPtr(buffer), uintptr(len(buffer)), uintptr(unsafe.Pointer(address))}
	args = append(args, u64(uint64(flags))...)
	r, _, _ := b.calcChecksums.Call(args...)
	return r != 0
}

func (b *DLLBackend) CheckFilter(filter string, layer Layer) (bool, string, uint) {
	filterPtr, err := windows.BytePtrFromString(filter)
	if err != nil {
		return false, err.Error(), 0
	}
	var (
		errStr *byte
		errPos uint32
	)
	r, _, _ := b.compileFilter.Call(uintptr(unsafe.Pointer(filterPtr)), uintptr(layer), 0, 0, uintptr(unsafe.Pointer(&errStr)), uintptr(unsafe.Pointer(&errPos)))
	if r != 0 {
		return true, "", 0
	}
	return false, windows.BytePtrToString(errStr), uint(errPos)
}

func (b *DLLBackend) EvalFilter(filter string, buffer []byte, address *Address) (bool, error) {
	filterPtr, err := windows.BytePtrFromString(filter)
	if err != nil {
		return false, err
	}
	r, _, lastErr := b.evalFilter.Call(uintptr(unsafe.Pointer(filterPtr)), bufferPtr(buffer), uintptr(len(buffer)), uintptr(unsafe.Pointer(address)))
	if r != 0 {
		return true, nil
	}
	if errno, ok := lastErr.(syscall.Errno); ok && errno != 0 {
		return false, errno
	}
	return false, nil
}
