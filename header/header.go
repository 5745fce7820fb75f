// Package header provides zero-copy views over the IPv4, IPv6, ICMP,
// ICMPv6, TCP and UDP headers of a diverted packet.
//
// Each view wraps the matching gvisor header type. A view never owns
// memory. It is bound to a sub-slice of the caller's packet buffer by a
// parse and stays valid only as long as that buffer is neither freed nor
// reused. Getters on an unbound view return the zero value and setters are
// no-ops.
package header

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"
)

// Sizes of the fixed part of each header.
const (
	IPv4MinimumSize = gheader.IPv4MinimumSize
	IPv6FixedSize   = gheader.IPv6FixedHeaderSize
	ICMPSize        = gheader.ICMPv4MinimumSize
	ICMPv6Size      = gheader.ICMPv6MinimumSize
	TCPMinimumSize  = gheader.TCPMinimumSize
	UDPSize         = gheader.UDPMinimumSize
)

// IP protocol numbers of the transports a view exists for.
const (
	ProtocolICMP   = uint8(gheader.ICMPv4ProtocolNumber)
	ProtocolTCP    = uint8(gheader.TCPProtocolNumber)
	ProtocolUDP    = uint8(gheader.UDPProtocolNumber)
	ProtocolICMPv6 = uint8(gheader.ICMPv6ProtocolNumber)
)

// addrCache keeps the last raw address seen by a getter so repeated reads
// without a write in between return the same netip.Addr.
type addrCache struct {
	raw   tcpip.Address
	valid bool
	addr  netip.Addr
}

func (c *addrCache) load(a tcpip.Address) netip.Addr {
	if c.valid && c.raw == a {
		return c.addr
	}
	c.raw, c.valid = a, true
	if a.Len() == 4 {
		c.addr = netip.AddrFrom4(a.As4())
	} else {
		c.addr = netip.AddrFrom16(a.As16())
	}
	return c.addr
}

func (c *addrCache) reset() {
	*c = addrCache{}
}

// setVersion writes the version nibble shared by both IP headers.
func setVersion(b []byte, v uint8) {
	b[0] = b[0]&0x0f | v<<4
}
