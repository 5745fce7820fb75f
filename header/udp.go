package header

import gheader "gvisor.dev/gvisor/pkg/tcpip/header"

// UDP is a view of a UDP header.
type UDP struct {
	b gheader.UDP
}

func (h *UDP) Bind(b []byte) bool {
	if len(b) < UDPSize {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

func (h *UDP) Unbind() { h.b = nil }

func (h *UDP) Valid() bool { return h != nil && h.b != nil }

func (h *UDP) Bytes() []byte { return h.b }

func (h *UDP) SourcePort() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.SourcePort()
}

func (h *UDP) SetSourcePort(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetSourcePort(v)
}

func (h *UDP) DestinationPort() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.DestinationPort()
}

func (h *UDP) SetDestinationPort(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetDestinationPort(v)
}

// Length covers the UDP header and payload.
func (h *UDP) Length() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Length()
}

func (h *UDP) SetLength(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetLength(v)
}

func (h *UDP) Checksum() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Checksum()
}

func (h *UDP) SetChecksum(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetChecksum(v)
}
