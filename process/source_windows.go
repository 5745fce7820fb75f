//go:build windows

package process

import (
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	iphlpapi = windows.NewLazySystemDLL("iphlpapi.dll")

	procGetTcpTable2        = iphlpapi.NewProc("GetTcpTable2")
	procGetTcp6Table2       = iphlpapi.NewProc("GetTcp6Table2")
	procGetExtendedUdpTable = iphlpapi.NewProc("GetExtendedUdpTable")
)

const udpTableOwnerPID = 1

// IPHelperSource reads the connection tables from iphlpapi.
type IPHelperSource struct{}

func (IPHelperSource) Query(kind Kind, buf []byte) (uint32, error) {
	if len(buf) == 0 {
		return uint32(TableSize(kind, 0)), windows.ERROR_INSUFFICIENT_BUFFER
	}
	size := uint32(len(buf))

	var r1 uintptr
	switch kind {
	case TCP4:
		r1, _, _ = procGetTcpTable2.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0)
	case TCP6:
		r1, _, _ = procGetTcp6Table2.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0)
	case UDP4:
		r1, _, _ = procGetExtendedUdpTable.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0, windows.AF_INET, udpTableOwnerPID, 0)
	case UDP6:
		r1, _, _ = procGetExtendedUdpTable.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0, windows.AF_INET6, udpTableOwnerPID, 0)
	default:
		return 0, errors.Errorf("process: unknown table %v", kind)
	}
	if r1 != 0 {
		return size, syscall.Errno(r1)
	}
	return size, nil
}

// ImageResolver opens processes with limited query rights and reads their
// full image path.
type ImageResolver struct{}

func (ImageResolver) ImagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", errors.Wrapf(err, "process: open %d", pid)
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	n := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &n); err != nil {
		return "", errors.Wrapf(err, "process: image name of %d", pid)
	}
	return windows.UTF16ToString(buf[:n]), nil
}

// DefaultSource is the native connection table source.
func DefaultSource() TableSource { return IPHelperSource{} }

// DefaultResolver is the native image path resolver.
func DefaultResolver() Resolver { return ImageResolver{} }
