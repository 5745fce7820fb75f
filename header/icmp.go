package header

import gheader "gvisor.dev/gvisor/pkg/tcpip/header"

// ICMP is a view of an ICMP header.
type ICMP struct {
	b gheader.ICMPv4
}

func (h *ICMP) Bind(b []byte) bool {
	if len(b) < ICMPSize {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

func (h *ICMP) Unbind() { h.b = nil }

func (h *ICMP) Valid() bool { return h != nil && h.b != nil }

func (h *ICMP) Bytes() []byte { return h.b }

func (h *ICMP) Type() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Type())
}

func (h *ICMP) SetType(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetType(gheader.ICMPv4Type(v))
}

func (h *ICMP) Code() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Code())
}

func (h *ICMP) SetCode(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetCode(gheader.ICMPv4Code(v))
}

func (h *ICMP) Checksum() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Checksum()
}

func (h *ICMP) SetChecksum(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetChecksum(v)
}

// Body is the rest-of-header word, identifier and sequence for echo.
func (h *ICMP) Body() uint32 {
	if !h.Valid() {
		return 0
	}
	return uint32(h.b.Ident())<<16 | uint32(h.b.Sequence())
}

func (h *ICMP) SetBody(v uint32) {
	if !h.Valid() {
		return
	}
	h.b.SetIdent(uint16(v >> 16))
	h.b.SetSequence(uint16(v))
}

// ICMPv6 is a view of an ICMPv6 header.
type ICMPv6 struct {
	b gheader.ICMPv6
}

func (h *ICMPv6) Bind(b []byte) bool {
	if len(b) < ICMPv6Size {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

func (h *ICMPv6) Unbind() { h.b = nil }

func (h *ICMPv6) Valid() bool { return h != nil && h.b != nil }

func (h *ICMPv6) Bytes() []byte { return h.b }

func (h *ICMPv6) Type() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Type())
}

func (h *ICMPv6) SetType(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetType(gheader.ICMPv6Type(v))
}

func (h *ICMPv6) Code() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Code())
}

func (h *ICMPv6) SetCode(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetCode(gheader.ICMPv6Code(v))
}

func (h *ICMPv6) Checksum() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Checksum()
}

func (h *ICMPv6) SetChecksum(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetChecksum(v)
}

// Body is the type-specific word following the checksum.
func (h *ICMPv6) Body() uint32 {
	if !h.Valid() {
		return 0
	}
	return h.b.TypeSpecific()
}

func (h *ICMPv6) SetBody(v uint32) {
	if !h.Valid() {
		return
	}
	h.b.SetTypeSpecific(v)
}
