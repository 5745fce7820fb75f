package header

import gheader "gvisor.dev/gvisor/pkg/tcpip/header"

// TCP control bits.
const (
	TCPFlagFin = uint8(gheader.TCPFlagFin)
	TCPFlagSyn = uint8(gheader.TCPFlagSyn)
	TCPFlagRst = uint8(gheader.TCPFlagRst)
	TCPFlagPsh = uint8(gheader.TCPFlagPsh)
	TCPFlagAck = uint8(gheader.TCPFlagAck)
	TCPFlagUrg = uint8(gheader.TCPFlagUrg)

	tcpFlagsMask = 0x3f
)

// TCP is a view of a TCP header.
type TCP struct {
	b gheader.TCP
}

func (h *TCP) Bind(b []byte) bool {
	if len(b) < TCPMinimumSize {
		h.b = nil
		return false
	}
	h.b = b
	return true
}

func (h *TCP) Unbind() { h.b = nil }

func (h *TCP) Valid() bool { return h != nil && h.b != nil }

func (h *TCP) Bytes() []byte { return h.b }

func (h *TCP) SourcePort() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.SourcePort()
}

func (h *TCP) SetSourcePort(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetSourcePort(v)
}

func (h *TCP) DestinationPort() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.DestinationPort()
}

func (h *TCP) SetDestinationPort(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetDestinationPort(v)
}

func (h *TCP) SequenceNumber() uint32 {
	if !h.Valid() {
		return 0
	}
	return h.b.SequenceNumber()
}

func (h *TCP) SetSequenceNumber(v uint32) {
	if !h.Valid() {
		return
	}
	h.b.SetSequenceNumber(v)
}

func (h *TCP) AckNumber() uint32 {
	if !h.Valid() {
		return 0
	}
	return h.b.AckNumber()
}

func (h *TCP) SetAckNumber(v uint32) {
	if !h.Valid() {
		return
	}
	h.b.SetAckNumber(v)
}

// HeaderLength is the data offset, in 32-bit words.
func (h *TCP) HeaderLength() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b.DataOffset() / 4
}

// SetHeaderLength sets the data offset, in 32-bit words, keeping Reserved1.
func (h *TCP) SetHeaderLength(v uint8) {
	if !h.Valid() {
		return
	}
	r := h.Reserved1()
	h.b.SetDataOffset((v & 0x0f) * 4)
	h.SetReserved1(r)
}

// Reserved1 is the low nibble of the data offset byte.
func (h *TCP) Reserved1() uint8 {
	if !h.Valid() {
		return 0
	}
	return h.b[gheader.TCPDataOffset] & 0x0f
}

func (h *TCP) SetReserved1(v uint8) {
	if !h.Valid() {
		return
	}
	h.b[gheader.TCPDataOffset] = h.b[gheader.TCPDataOffset]&0xf0 | v&0x0f
}

// Reserved2 is the top two bits of the flags byte.
func (h *TCP) Reserved2() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Flags()) >> 6
}

func (h *TCP) SetReserved2(v uint8) {
	if !h.Valid() {
		return
	}
	h.b.SetFlags(uint8(h.b.Flags())&tcpFlagsMask | v<<6)
}

// Flags returns the six control bits.
func (h *TCP) Flags() uint8 {
	if !h.Valid() {
		return 0
	}
	return uint8(h.b.Flags()) & tcpFlagsMask
}

func (h *TCP) flag(bit uint8) bool {
	return h.Valid() && uint8(h.b.Flags())&bit != 0
}

func (h *TCP) setFlag(bit uint8, v bool) {
	if !h.Valid() {
		return
	}
	flags := uint8(h.b.Flags()) &^ bit
	if v {
		flags |= bit
	}
	h.b.SetFlags(flags)
}

func (h *TCP) Fin() bool { return h.flag(TCPFlagFin) }
func (h *TCP) SetFin(v bool) { h.setFlag(TCPFlagFin, v) }
func (h *TCP) Syn() bool { return h.flag(TCPFlagSyn) }
func (h *TCP) SetSyn(v bool) { h.setFlag(TCPFlagSyn, v) }
func (h *TCP) Rst() bool { return h.flag(TCPFlagRst) }
func (h *TCP) SetRst(v bool) { h.setFlag(TCPFlagRst, v) }
func (h *TCP) Psh() bool { return h.flag(TCPFlagPsh) }
func (h *TCP) SetPsh(v bool) { h.setFlag(TCPFlagPsh, v) }
func (h *TCP) Ack() bool { return h.flag(TCPFlagAck) }
func (h *TCP) SetAck(v bool) { h.setFlag(TCPFlagAck, v) }
func (h *TCP) Urg() bool { return h.flag(TCPFlagUrg) }
func (h *TCP) SetUrg(v bool) { h.setFlag(TCPFlagUrg, v) }

func (h *TCP) Window() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.WindowSize()
}

func (h *TCP) SetWindow(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetWindowSize(v)
}

func (h *TCP) Checksum() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.Checksum()
}

func (h *TCP) SetChecksum(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetChecksum(v)
}

func (h *TCP) UrgentPointer() uint16 {
	if !h.Valid() {
		return 0
	}
	return h.b.UrgentPointer()
}

func (h *TCP) SetUrgentPointer(v uint16) {
	if !h.Valid() {
		return
	}
	h.b.SetUrgentPointer(v)
}
