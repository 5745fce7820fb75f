//go:build !windows

package divert

import "github.com/pkg/errors"

func loadDefaultBackend() (Backend, error) {
	return nil, errors.WithStack(ErrUnsupported)
}
