package divert

import "github.com/imgk/divert-net/header"

// Headers names the views a parse should bind. Nil fields are skipped;
// every other view is rebound, or unbound when the packet lacks that header.
type Headers struct {
	IPv4   *header.IPv4
	IPv6   *header.IPv6
	ICMP   *header.ICMP
	ICMPv6 *header.ICMPv6
	TCP    *header.TCP
	UDP    *header.UDP
}

func (h Headers) bind(p Packet) {
	if h.IPv4 != nil {
		h.IPv4.Bind(p.IPv4)
	}
	if h.IPv6 != nil {
		h.IPv6.Bind(p.IPv6)
	}
	if h.ICMP != nil {
		h.ICMP.Bind(p.ICMP)
	}
	if h.ICMPv6 != nil {
		h.ICMPv6.Bind(p.ICMPv6)
	}
	if h.TCP != nil {
		h.TCP.Bind(p.TCP)
	}
	if h.UDP != nil {
		h.UDP.Bind(p.UDP)
	}
}

// ParsePacket decodes packet with the engine and binds the requested views
// into it. The result is the engine's verdict; false is an ordinary outcome
// for truncated or foreign packets.
func (s *Session) ParsePacket(packet []byte, hdrs Headers) bool {
	_, ok := s.parse(packet, hdrs)
	return ok
}

// ParsePacketData is ParsePacket that also returns a copy of the transport
// payload.
func (s *Session) ParsePacketData(packet []byte, hdrs Headers) ([]byte, bool) {
	p, ok := s.parse(packet, hdrs)
	return append([]byte{}, p.Payload...), ok
}

func (s *Session) parse(packet []byte, hdrs Headers) (Packet, bool) {
	var p Packet
	ok := false
	if len(packet) > 0 {
		p, ok = s.backend.ParsePacket(packet)
	}
	hdrs.bind(p)
	return p, ok
}

// CalculateChecksums recomputes the checksums of packet in place and returns
// how many were written. flags suppresses individual protocols.
func (s *Session) CalculateChecksums(packet []byte, flags ChecksumFlag) uint {
	if len(packet) == 0 {
		return 0
	}
	p, ok := s.backend.ParsePacket(packet)
	if !ok {
		return 0
	}
	flags = resolveNoReplace(p, flags)
	if !s.backend.CalcChecksums(packet, nil, flags) {
		return 0
	}
	return ChecksumCount(p, flags)
}

// resolveNoReplace turns ChecksumNoReplace into the per-protocol skips of
// the fields p already carries a checksum in. The engine never sees the
// flag.
func resolveNoReplace(p Packet, flags ChecksumFlag) ChecksumFlag {
	if flags&ChecksumNoReplace == 0 {
		return flags
	}
	flags &^= ChecksumNoReplace

	var (
		ip4    header.IPv4
		icmp   header.ICMP
		icmpv6 header.ICMPv6
		tcp    header.TCP
		udp    header.UDP
	)
	Headers{IPv4: &ip4, ICMP: &icmp, ICMPv6: &icmpv6, TCP: &tcp, UDP: &udp}.bind(p)
	skip := func(set bool, f ChecksumFlag) {
		if set {
			flags |= f
		}
	}
	skip(ip4.Checksum() != 0, ChecksumNoIP)
	skip(icmp.Checksum() != 0, ChecksumNoICMP)
	skip(icmpv6.Checksum() != 0, ChecksumNoICMPv6)
	skip(tcp.Checksum() != 0, ChecksumNoTCP)
	skip(udp.Checksum() != 0, ChecksumNoUDP)
	return flags
}

// ChecksumCount is the number of checksum fields a recalculation of p
// writes under flags. IPv6 has no header checksum. ChecksumNoReplace depends
// on the packet bytes and is not counted here; CalculateChecksums resolves
// it first.
func ChecksumCount(p Packet, flags ChecksumFlag) uint {
	n := uint(0)
	count := func(present bool, skip ChecksumFlag) {
		if present && flags&skip == 0 {
			n++
		}
	}
	count(p.IPv4 != nil, ChecksumNoIP)
	count(p.ICMP != nil, ChecksumNoICMP)
	count(p.ICMPv6 != nil, ChecksumNoICMPv6)
	count(p.TCP != nil, ChecksumNoTCP)
	count(p.UDP != nil, ChecksumNoUDP)
	return n
}
