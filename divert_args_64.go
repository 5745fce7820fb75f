//go:build windows && (amd64 || arm64)

package divert

// u64 passes a 64-bit argument in a single register.
func u64(v uint64) []uintptr {
	return []uintptr{uintptr(v)}
}
