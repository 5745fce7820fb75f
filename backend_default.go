package divert

import "sync"

var (
	defaultMu      sync.Mutex
	defaultLoaded  bool
	defaultBackend Backend
	defaultErr     error
)

// DefaultBackend loads the platform backend once and checks the driver
// version. Later calls return the same backend or the same error.
func DefaultBackend() (Backend, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if !defaultLoaded {
		defaultBackend, defaultErr = loadDefaultBackend()
		defaultLoaded = true
	}
	return defaultBackend, defaultErr
}

// SetDefaultBackend installs b as the backend used by Open, GetVersion and
// ValidateFilter once its driver version has been checked.
func SetDefaultBackend(b Backend) error {
	ver, err := VersionOf(b)
	if err != nil {
		return err
	}
	if err := checkVersion(ver); err != nil {
		return err
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBackend, defaultErr, defaultLoaded = b, nil, true
	return nil
}
