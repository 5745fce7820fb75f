//go:build windows && (amd64 || arm64 || 386)

package divert

import (
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.zx2c4.com/wireguard/windows/driver/memmod"
)

// memoryDLL is a WinDivert image mapped from memory rather than disk.
type memoryDLL struct {
	mu     sync.Mutex
	module *memmod.Module
}

func (d *memoryDLL) NewProc(name string) *memoryProc {
	return &memoryProc{dll: d, Name: name}
}

func (d *memoryDLL) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.module == nil {
		return nil
	}
	d.module.Free()
	d.module = nil
	return nil
}

type memoryProc struct {
	Name string
	mu   sync.Mutex
	dll  *memoryDLL
	addr uintptr
}

func (p *memoryProc) Find() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addr != 0 {
		return nil
	}

	p.dll.mu.Lock()
	module := p.dll.module
	p.dll.mu.Unlock()
	if module == nil {
		return errors.Errorf("divert: %v: image released", p.Name)
	}
	addr, err := module.ProcAddressByName(p.Name)
	if err != nil {
		return errors.Wrapf(err, "divert: address of %v", p.Name)
	}
	p.addr = addr
	return nil
}

func (p *memoryProc) Call(a ...uintptr) (r1, r2 uintptr, lastErr error) {
	if err := p.Find(); err != nil {
		panic(err)
	}
	return syscall.SyscallN(p.addr, a...)
}

// NewMemoryBackend maps a WinDivert DLL image, typically embedded in the
// binary, and resolves its exports. Release unmaps it.
func NewMemoryBackend(image []byte) (*DLLBackend, error) {
	module, err := memmod.LoadLibrary(image)
	if err != nil {
		return nil, errors.Wrap(err, "divert: unable to load library")
	}
	dll := &memoryDLL{module: module}

	b, err := newDLLBackend(func(name string) proc { return dll.NewProc(name) }, dll.Free)
	if err != nil {
		dll.Free()
		return nil, err
	}
	return b, nil
}
