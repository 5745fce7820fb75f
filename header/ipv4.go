package header

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"
)

const (
	ipv4ProtocolOffset = 9

	ipv4FragmentMask = 0x1fff
	ipv4FlagReserved = 1 << 2
)

// IPv4 is a view of an IPv4 header.
type IPv4 struct {
	b   gheader.IPv4
	src addrCache
	dst addrCache
}

// Bind points the view at b. A slice shorter than the fixed header unbinds
// the view and reports false.
func (h *IPv4) Bind(b []byte) bool {
	h.src.reset()
	h.dst.reset()
	if len(b) < IPv4MinimumSize {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

// Unbind detaches the view from its buffer.
func (h *IPv4) Unbind() { h.Bind(nil) }

// Valid reports whether the view is bound to a buffer.
func (h *IPv4) Valid() bool { return h != nil && h.b != nil }

// Bytes returns the bound slice, from the header start to the end of the packet.
func (h *IPv4) Bytes() []byte { return h.b }

// HeaderLength is the IHL field, in 32-bit words.
func (h *IPv4) HeaderLength() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.HeaderLength() / gheader.IPv4IHLStride
}

// SetHeaderLength sets the IHL field, in 32-bit words, keeping the version.
func (h *IPv4) SetHeaderLength(v uint8) {
	if !h.Valid() {
		return
	}
	ver := h.Version()
	h.b.SetHeaderLength((v & 0x0f) * gheader.IPv4IHLStride)
	setVersion(h.b, ver)
}

func (h *IPv4) Version() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(gheader.IPVersion(h.b))
}

func (h *IPv4) SetVersion(v uint8) {
	if !h.Valid() {
		return
	}
	setVersion(h.b, v)
}

func (h *IPv4) TOS() uint8 {
	if !h.Valid() {
		return 0
	}
	tos, _ := h.b.TOS()
	return tos
}

func (h *IPv4) SetTOS(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetTOS(v, 0)
}

// Length is the total length of the datagram.
func (h *IPv4) Length() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.TotalLength()
}

func (h *IPv4) SetLength(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetTotalLength(v)
}

func (h *IPv4) ID() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.ID()
}

func (h *IPv4) SetID(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetID(v)
}

// FragmentOffset is the 13-bit offset field, in 8-byte units.
func (h *IPv4) FragmentOffset() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.FragmentOffset() >> 3
}

func (h *IPv4) SetFragmentOffset(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetFlagsFragmentOffset(h.b.Flags(), (v&ipv4FragmentMask)<<3)
}

func (h *IPv4) flag(bit uint8) bool {
	return h.Valid() && h.b.Flags()&bit != 0
}

func (h *IPv4) setFlag(bit uint8, v bool) {
	if !h.Valid() {
		return
	}
	flags := h.b.Flags() &^ bit
	if v {
		flags |= bit
	}
	h.b.SetFlagsFragmentOffset(flags, h.b.FragmentOffset())
}

// MF is the more-fragments flag.
func (h *IPv4) MF() bool { return h.flag(gheader.IPv4FlagMoreFragments) }

func (h *IPv4) SetMF(v bool) { h.setFlag(gheader.IPv4FlagMoreFragments, v) }

// DF is the don't-fragment flag.
func (h *IPv4) DF() bool { return h.flag(gheader.IPv4FlagDontFragment) }

func (h *IPv4) SetDF(v bool) { h.setFlag(gheader.IPv4FlagDontFragment, v) }

// Reserved is the evil bit.
func (h *IPv4) Reserved() bool { return h.flag(ipv4FlagReserved) }

func (h *IPv4) SetReserved(v bool) { h.setFlag(ipv4FlagReserved, v) }

func (h *IPv4) TTL() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.TTL()
}

func (h *IPv4) SetTTL(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetTTL(v)
}

func (h *IPv4) Protocol() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.Protocol()
}

func (h *IPv4) SetProtocol(v uint8) {
	if !h.Valid() {
		return
	}
	h.b[ipv4ProtocolOffset] = v
}

func (h *IPv4) Checksum() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Checksum()
}

func (h *IPv4) SetChecksum(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetChecksum(v)
}

// Source returns the source address, or 0.0.0.0 on an unbound view.
func (h *IPv4) Source() netip.Addr {
	if !h.Valid() {
		return netip.IPv4Unspecified()
	}
	return h.src.load(h.b.SourceAddress())
}

// SetSource writes addr when it is an IPv4 address.
func (h *IPv4) SetSource(addr netip.Addr) {
	if !h.Valid() || !addr.Is4() {
		return
	}
	h.b.SetSourceAddress(tcpip.AddrFrom4(addr.As4()))
}

// Destination returns the destination address, or 0.0.0.0 on an unbound view.
func (h *IPv4) Destination() netip.Addr {
	if !h.Valid() {
		return netip.IPv4Unspecified()
	}
	return h.dst.load(h.b.DestinationAddress())
}

func (h *IPv4) SetDestination(addr netip.Addr) {
	if !h.Valid() || !addr.Is4() {
		return
	}
	h.b.SetDestinationAddress(tcpip.AddrFrom4(addr.As4()))
}
