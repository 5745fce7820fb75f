//go:build windows

package netdump

import (
	"os"

	"github.com/pkg/errors"

	"github.com/imgk/divert-net"
)

// LoadBackend loads the engine library and checks its version. The release
// function unloads it once no session is left.
func LoadBackend(cfg DriverConfig) (divert.Backend, func() error, error) {
	var (
		b   *divert.DLLBackend
		err error
	)
	if cfg.Image != "" {
		image, rerr := os.ReadFile(cfg.Image)
		if rerr != nil {
			return nil, nil, errors.Wrapf(rerr, "netdump: read image %s", cfg.Image)
		}
		b, err = loadImage(image)
	} else {
		dll := cfg.DLL
		if dll == "" {
			dll = divert.DefaultDLL
		}
		b, err = divert.NewDLLBackend(dll)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := divert.SetDefaultBackend(b); err != nil {
		b.Release()
		return nil, nil, err
	}
	return b, b.Release, nil
}
