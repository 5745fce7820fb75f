package header

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"
)

// IPv6 is a view of the fixed IPv6 header.
type IPv6 struct {
	b   gheader.IPv6
	src addrCache
	dst addrCache
}

func (h *IPv6) Bind(b []byte) bool {
	h.src.reset()
	h.dst.reset()
	if len(b) < IPv6FixedSize {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

func (h *IPv6) Unbind() { h.Bind(nil) }

func (h *IPv6) Valid() bool { return h != nil && h.b != nil }

func (h *IPv6) Bytes() []byte { return h.b }

func (h *IPv6) Version() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(gheader.IPVersion(h.b))
}

func (h *IPv6) SetVersion(v uint8) {
	if !h.Valid() {
		return
	}
	setVersion(h.b, v)
}

// setTOS writes traffic class and flow label. gvisor always stamps version
// 6 into the shared word, so the previous version is put back.
func (h *IPv6) setTOS(tc uint8, fl uint32) {
	ver := h.Version()
	h.b.SetTOS(tc, fl)
	setVersion(h.b, ver)
}

// TrafficClass spans the low nibble of byte 0 and the high nibble of byte 1.
func (h *IPv6) TrafficClass() uint8 {
	if !h.Valid() {
		return 0
	}
	tc, _ := h.b.TOS()
	return tc
}

func (h *IPv6) SetTrafficClass(v uint8) {
	if !h.Valid() {
		return
	}
	_, fl := h.b.TOS()
	h.setTOS(v, fl)
}

// FlowLabel is the low 20 bits of the first word.
func (h *IPv6) FlowLabel() uint32 {
	if !h.Valid() {
		return 0
	}
	_, fl := h.b.TOS()
	return fl
}

func (h *IPv6) SetFlowLabel(v uint32) {
	if !h.Valid() {
		return
	}
	tc, _ := h.b.TOS()
	h.setTOS(tc, v)
}

// Length is the payload length.
func (h *IPv6) Length() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.PayloadLength()
}

func (h *IPv6) SetLength(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetPayloadLength(v)
}

func (h *IPv6) NextHeader() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.NextHeader()
}

func (h *IPv6) SetNextHeader(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetNextHeader(v)
}

func (h *IPv6) HopLimit() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.HopLimit()
}

func (h *IPv6) SetHopLimit(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetHopLimit(v)
}

// Source returns the source address, or :: on an unbound view.
func (h *IPv6) Source() netip.Addr {
	if !h.Valid() {
		return netip.IPv6Unspecified()
	}
	return h.src.load(h.b.SourceAddress())
}

// SetSource writes addr when it is a 16-byte address.
func (h *IPv6) SetSource(addr netip.Addr) {
	if !h.Valid() || !addr.Is6() {
		return
	}
	h.b.SetSourceAddress(tcpip.AddrFrom16(addr.As16()))
}

func (h *IPv6) Destination() netip.Addr {
	if !h.Valid() {
		return netip.IPv6Unspecified()
	}
	return h.dst.load(h.b.DestinationAddress())
}

func (h *IPv6) SetDestination(addr netip.Addr) {
	if !h.Valid() || !addr.Is6() {
		return
	}
	h.b.SetDestinationAddress(tcpip.AddrFrom16(addr.As16()))
}
