//go:build !windows

package process

// DefaultSource synthesises connection tables from gopsutil where the OS
// has no native equivalent.
func DefaultSource() TableSource { return PortableSource{} }

func DefaultResolver() Resolver { return PortableResolver{} }
