//go:build windows && (386 || arm)

package divert

// u64 splits a 64-bit argument into two stack words, low word first.
// Passing uint64 as a single uintptr on a 32-bit system shifts every
// following argument.
func u64(v uint64) []uintptr {
	return []uintptr{uintptr(uint32(v)), uintptr(uint32(v >> 32))}
}
