package divertest

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/imgk/divert-net"
)

func address(a netip.Addr) tcpip.Address {
	if a.Is4() {
		return tcpip.AddrFrom4(a.As4())
	}
	return tcpip.AddrFrom16(a.As16())
}

// ip wraps a transport segment in an IPv4 or IPv6 header chosen by the
// family of src. Checksums are left zero.
func ip(src, dst netip.Addr, proto tcpip.TransportProtocolNumber, segment []byte) []byte {
	if src.Is4() {
		b := make([]byte, header.IPv4MinimumSize+len(segment))
		header.IPv4(b).Encode(&header.IPv4Fields{
			TotalLength: uint16(len(b)),
			ID:          1,
			TTL:         64,
			Protocol:    uint8(proto),
			SrcAddr:     address(src),
			DstAddr:     address(dst),
		})
		copy(b[header.IPv4MinimumSize:], segment)
		return b
	}

	b := make([]byte, header.IPv6FixedHeaderSize+len(segment))
	header.IPv6(b).Encode(&header.IPv6Fields{
		PayloadLength:     uint16(len(segment)),
		TransportProtocol: proto,
		HopLimit:          64,
		SrcAddr:           address(src),
		DstAddr:           address(dst),
	})
	copy(b[header.IPv6FixedHeaderSize:], segment)
	return b
}

// TCP builds an IP packet carrying a TCP segment with the given flags.
func TCP(src, dst netip.AddrPort, flags header.TCPFlags, payload []byte) []byte {
	seg := make([]byte, header.TCPMinimumSize+len(payload))
	header.TCP(seg).Encode(&header.TCPFields{
		SrcPort:    src.Port(),
		DstPort:    dst.Port(),
		SeqNum:     1000,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: 0xffff,
	})
	copy(seg[header.TCPMinimumSize:], payload)
	return ip(src.Addr(), dst.Addr(), header.TCPProtocolNumber, seg)
}

// UDP builds an IP packet carrying a UDP datagram.
func UDP(src, dst netip.AddrPort, payload []byte) []byte {
	seg := make([]byte, header.UDPMinimumSize+len(payload))
	header.UDP(seg).Encode(&header.UDPFields{
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Length:  uint16(len(seg)),
	})
	copy(seg[header.UDPMinimumSize:], payload)
	return ip(src.Addr(), dst.Addr(), header.UDPProtocolNumber, seg)
}

// Echo builds an ICMP or ICMPv6 echo request, by the family of src.
func Echo(src, dst netip.Addr, ident, seq uint16, payload []byte) []byte {
	if src.Is4() {
		seg := make([]byte, header.ICMPv4MinimumSize+len(payload))
		icmp := header.ICMPv4(seg)
		icmp.SetType(header.ICMPv4Echo)
		icmp.SetIdent(ident)
		icmp.SetSequence(seq)
		copy(seg[header.ICMPv4MinimumSize:], payload)
		return ip(src, dst, header.ICMPv4ProtocolNumber, seg)
	}

	seg := make([]byte, header.ICMPv6MinimumSize+len(payload))
	icmp := header.ICMPv6(seg)
	icmp.SetType(header.ICMPv6EchoRequest)
	icmp.SetIdent(ident)
	icmp.SetSequence(seq)
	copy(seg[header.ICMPv6MinimumSize:], payload)
	return ip(src, dst, header.ICMPv6ProtocolNumber, seg)
}

// decode splits an IP packet the way the engine's helper does. IPv6
// extension headers are not walked.
func decode(b []byte) (divert.Packet, bool) {
	var p divert.Packet
	if len(b) == 0 {
		return p, false
	}

	var rest []byte
	switch header.IPVersion(b) {
	case header.IPv4Version:
		if len(b) < header.IPv4MinimumSize {
			return p, false
		}
		h := header.IPv4(b)
		hl, total := int(h.HeaderLength()), int(h.TotalLength())
		if hl < header.IPv4MinimumSize || total < hl || total > len(b) {
			return p, false
		}
		p.IPv4 = b[:hl]
		p.Protocol = h.Protocol()
		rest, p.Next = b[hl:total], b[total:]
	case header.IPv6Version:
		if len(b) < header.IPv6FixedHeaderSize {
			return p, false
		}
		h := header.IPv6(b)
		total := header.IPv6FixedHeaderSize + int(h.PayloadLength())
		if total > len(b) {
			return p, false
		}
		p.IPv6 = b[:header.IPv6FixedHeaderSize]
		p.Protocol = h.NextHeader()
		rest, p.Next = b[header.IPv6FixedHeaderSize:total], b[total:]
	default:
		return p, false
	}
	if len(p.Next) == 0 {
		p.Next = nil
	}

	switch tcpip.TransportProtocolNumber(p.Protocol) {
	case header.TCPProtocolNumber:
		if len(rest) < header.TCPMinimumSize {
			return p, false
		}
		off := int(header.TCP(rest).DataOffset())
		if off < header.TCPMinimumSize || off > len(rest) {
			return p, false
		}
		p.TCP, rest = rest[:off], rest[off:]
	case header.UDPProtocolNumber:
		if len(rest) < header.UDPMinimumSize {
			return p, false
		}
		p.UDP, rest = rest[:header.UDPMinimumSize], rest[header.UDPMinimumSize:]
	case header.ICMPv4ProtocolNumber:
		if p.IPv4 == nil || len(rest) < header.ICMPv4MinimumSize {
			return p, false
		}
		p.ICMP, rest = rest[:header.ICMPv4MinimumSize], rest[header.ICMPv4MinimumSize:]
	case header.ICMPv6ProtocolNumber:
		if p.IPv6 == nil || len(rest) < header.ICMPv6MinimumSize {
			return p, false
		}
		p.ICMPv6, rest = rest[:header.ICMPv6MinimumSize], rest[header.ICMPv6MinimumSize:]
	}
	if len(rest) > 0 {
		p.Payload = rest
	}
	return p, true
}

func (b *Backend) ParsePacket(buffer []byte) (divert.Packet, bool) {
	return decode(buffer)
}

func (b *Backend) CalcChecksums(buffer []byte, _ *divert.Address, flags divert.ChecksumFlag) bool {
	p, ok := decode(buffer)
	if !ok {
		return false
	}
	keep := func(skip divert.ChecksumFlag) bool {
		return flags&skip != 0
	}

	var src, dst tcpip.Address
	if p.IPv4 != nil {
		h := header.IPv4(p.IPv4)
		src, dst = h.SourceAddress(), h.DestinationAddress()
		if !keep(divert.ChecksumNoIP) {
			h.SetChecksum(0)
			h.SetChecksum(^h.CalculateChecksum())
		}
	} else {
		h := header.IPv6(p.IPv6)
		src, dst = h.SourceAddress(), h.DestinationAddress()
	}

	// Transport checksums cover everything from the transport header to the
	// end of the IP payload.
	segment := func(hdr []byte) []byte {
		start := len(buffer) - len(hdr) - len(p.Payload) - len(p.Next)
		return buffer[start : len(buffer)-len(p.Next)]
	}
	pseudo := func(proto tcpip.TransportProtocolNumber, seg []byte) uint16 {
		return header.PseudoHeaderChecksum(proto, src, dst, uint16(len(seg)))
	}

	switch {
	case p.TCP != nil:
		t := header.TCP(segment(p.TCP))
		if !keep(divert.ChecksumNoTCP) {
			t.SetChecksum(0)
			t.SetChecksum(^checksum.Checksum(t, pseudo(header.TCPProtocolNumber, t)))
		}
	case p.UDP != nil:
		u := header.UDP(segment(p.UDP))
		if !keep(divert.ChecksumNoUDP) {
			u.SetChecksum(0)
			u.SetChecksum(^checksum.Checksum(u, pseudo(header.UDPProtocolNumber, u)))
		}
	case p.ICMP != nil:
		i := header.ICMPv4(segment(p.ICMP))
		if !keep(divert.ChecksumNoICMP) {
			i.SetChecksum(0)
			i.SetChecksum(^checksum.Checksum(i, 0))
		}
	case p.ICMPv6 != nil:
		i := header.ICMPv6(segment(p.ICMPv6))
		if !keep(divert.ChecksumNoICMPv6) {
			i.SetChecksum(0)
			i.SetChecksum(^checksum.Checksum(i, pseudo(header.ICMPv6ProtocolNumber, i)))
		}
	}
	return true
}
