//go:build !windows

package netdump

import (
	"github.com/pkg/errors"

	"github.com/imgk/divert-net"
)

func LoadBackend(DriverConfig) (divert.Backend, func() error, error) {
	return nil, nil, errors.WithStack(divert.ErrUnsupported)
}
