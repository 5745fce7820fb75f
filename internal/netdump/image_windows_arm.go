//go:build windows && arm

package netdump

import (
	"github.com/pkg/errors"

	"github.com/imgk/divert-net"
)

func loadImage([]byte) (*divert.DLLBackend, error) {
	return nil, errors.Wrap(divert.ErrUnsupported, "netdump: in-memory image")
}
