package divert

import (
	"fmt"
	"sync/atomic"
)

// HandleKind records which routine releases a Handle.
type HandleKind uint8

const (
	// EngineHandle is a diversion handle, closed by the engine.
	EngineHandle HandleKind = iota + 1
	// OSHandle is a plain OS object such as an event, closed by the OS.
	OSHandle
)

func (k HandleKind) String() string {
	switch k {
	case EngineHandle:
		return "engine"
	case OSHandle:
		return "os"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Handle owns one native handle. It is either invalid or refers to a live
// object, and its close routine runs at most once.
type Handle struct {
	raw    atomic.Uintptr
	kind   HandleKind
	engine Engine
	sys    System
}

func newEngineHandle(e Engine, raw RawHandle) *Handle {
	h := &Handle{kind: EngineHandle, engine: e}
	h.raw.Store(uintptr(raw))
	return h
}

func newOSHandle(s System, raw RawHandle) *Handle {
	h := &Handle{kind: OSHandle, sys: s}
	h.raw.Store(uintptr(raw))
	return h
}

// Raw returns the native value, or InvalidRawHandle once closed.
func (h *Handle) Raw() RawHandle {
	if h == nil {
		return InvalidRawHandle
	}
	return RawHandle(h.raw.Load())
}

func (h *Handle) Kind() HandleKind { return h.kind }

func (h *Handle) Valid() bool {
	return h.Raw() != InvalidRawHandle
}

// Close releases the native handle. Closing an invalid handle returns
// ErrHandleClosed without calling into the engine or the OS.
func (h *Handle) Close() error {
	if h == nil {
		return ErrHandleClosed
	}
	raw := RawHandle(h.raw.Swap(uintptr(InvalidRawHandle)))
	if raw == InvalidRawHandle {
		return ErrHandleClosed
	}

	var err error
	switch h.kind {
	case EngineHandle:
		err = h.engine.Close(raw)
	case OSHandle:
		err = h.sys.CloseHandle(raw)
	default:
		panic(fmt.Sprintf("divert: close of %v handle", h.kind))
	}
	if err != nil {
		return opError("close "+h.kind.String()+" handle", err)
	}
	return nil
}
