//go:build windows

package divert

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// NewDLLBackend loads the WinDivert DLL at path and resolves every export
// the package uses.
func NewDLLBackend(path string) (*DLLBackend, error) {
	dll := windows.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, errors.Wrapf(err, "divert: load %s", path)
	}
	b, err := newDLLBackend(func(name string) proc { return dll.NewProc(name) }, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "divert: resolve %s exports", path)
	}
	return b, nil
}

func loadDefaultBackend() (Backend, error) {
	b, err := NewDLLBackend(DefaultDLL)
	if err != nil {
		return nil, err
	}
	ver, err := VersionOf(b)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(ver); err != nil {
		return nil, err
	}
	logger.WithField("version", ver).Debug("divert: loaded " + DefaultDLL)
	return b, nil
}
