package divert

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var supportedVersions = map[string]struct{}{
	"2.0": {},
	"2.1": {},
	"2.2": {},
}

// GetVersion returns the driver version as "major.minor".
func GetVersion() (string, error) {
	b, err := DefaultBackend()
	if err != nil {
		return "", err
	}
	return VersionOf(b)
}

// VersionOf opens a handle that matches nothing on b and reads the version
// parameters from it.
func VersionOf(b Backend) (ver string, err error) {
	s, err := OpenBackend(b, "false", LayerNetwork, PriorityDefault, FlagDefault)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	major, err := s.GetParam(VersionMajor)
	if err != nil {
		return "", err
	}
	minor, err := s.GetParam(VersionMinor)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{strconv.Itoa(int(major)), strconv.Itoa(int(minor))}, "."), nil
}

func checkVersion(ver string) error {
	if _, ok := supportedVersions[ver]; !ok {
		return errors.Errorf("divert: unsupported windivert version: %v", ver)
	}
	return nil
}
