//go:build windows && (amd64 || arm64 || 386)

package netdump

import "github.com/imgk/divert-net"

func loadImage(image []byte) (*divert.DLLBackend, error) {
	return divert.NewMemoryBackend(image)
}
