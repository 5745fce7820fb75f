//go:build windows

package divert

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// system implements System with kernel32 events and overlapped results.
type system struct{}

func (system) CreateEvent() (RawHandle, error) {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return InvalidRawHandle, err
	}
	return RawHandle(ev), nil
}

func (system) WaitEvent(ev RawHandle, timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout.Milliseconds())
	}
	r, err := windows.WaitForSingleObject(windows.Handle(ev), ms)
	switch r {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(ErrnoWaitTimeout):
		return false, nil
	default:
		return false, err
	}
}

func (system) OverlappedResult(h RawHandle, ov *Overlapped) (uint32, error) {
	n := uint32(0)
	err := windows.GetOverlappedResult(windows.Handle(h), (*windows.Overlapped)(unsafe.Pointer(ov)), &n, false)
	return n, err
}

func (system) CloseHandle(h RawHandle) error {
	return windows.CloseHandle(windows.Handle(h))
}
