package divert

import "time"

// RawHandle is a native handle value: a diversion handle or an event.
type RawHandle uintptr

// InvalidRawHandle is the sentinel of a handle that refers to nothing.
const InvalidRawHandle = ^RawHandle(0)

// Overlapped mirrors the OVERLAPPED record consumed by overlapped I/O.
// Internal holds the completion status, InternalHigh the transferred length.
type Overlapped struct {
	Internal     uintptr
	InternalHigh uintptr
	Offset       uint32
	OffsetHigh   uint32
	HEvent       RawHandle
}

// Packet is the outcome of the engine's packet decoder. Every slice aliases
// the buffer handed to ParsePacket and is nil when the packet carries no
// such header.
type Packet struct {
	IPv4     []byte
	IPv6     []byte
	Protocol uint8
	ICMP     []byte
	ICMPv6   []byte
	TCP      []byte
	UDP      []byte
	Payload  []byte
	Next     []byte
}

// Engine is the native diversion engine. Failures carry a syscall.Errno.
// RecvEx and SendEx report a pending overlapped operation as ErrnoIOPending.
type Engine interface {
	Open(filter string, layer Layer, priority int16, flags uint64) (RawHandle, error)
	Close(h RawHandle) error
	Recv(h RawHandle, buffer []byte, address *Address) (uint, error)
	RecvEx(h RawHandle, buffer []byte, address *Address, ov *Overlapped) (uint, error)
	Send(h RawHandle, buffer []byte, address *Address) (uint, error)
	SendEx(h RawHandle, buffer []byte, address *Address, ov *Overlapped) (uint, error)
	Shutdown(h RawHandle, how Shutdown) error
	GetParam(h RawHandle, p Param) (uint64, error)
	SetParam(h RawHandle, p Param, v uint64) error

	ParsePacket(buffer []byte) (Packet, bool)
	CalcChecksums(buffer []byte, address *Address, flags ChecksumFlag) bool
	CheckFilter(filter string, layer Layer) (ok bool, msg string, pos uint)
	EvalFilter(filter string, buffer []byte, address *Address) (bool, error)
}

// System is the OS side of overlapped I/O.
type System interface {
	CreateEvent() (RawHandle, error)
	// WaitEvent reports false without error when timeout elapses first.
	// A negative timeout waits forever.
	WaitEvent(ev RawHandle, timeout time.Duration) (bool, error)
	OverlappedResult(h RawHandle, ov *Overlapped) (uint32, error)
	CloseHandle(h RawHandle) error
}

// Backend is everything a Session needs from the platform.
type Backend interface {
	Engine
	System
}
