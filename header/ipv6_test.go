package header_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/imgk/divert-net/header"
)

var (
	v6Src = netip.MustParseAddr("2001:db8::1")
	v6Dst = netip.MustParseAddr("fe80::abcd:1")
)

func buildIPv6(payload int) gheader.IPv6 {
	ip := make(gheader.IPv6, gheader.IPv6MinimumSize+payload)
	ip.Encode(&gheader.IPv6Fields{
		TrafficClass:      0xb8,
		FlowLabel:         0xabcde,
		PayloadLength:     uint16(payload),
		TransportProtocol: gheader.TCPProtocolNumber,
		HopLimit:          255,
		SrcAddr:           tcpip.AddrFrom16(v6Src.As16()),
		DstAddr:           tcpip.AddrFrom16(v6Dst.As16()),
	})
	return ip
}

func Test_IPv6_Fields(t *testing.T) {
	ip := buildIPv6(gheader.TCPMinimumSize)

	var h header.IPv6
	require.True(t, h.Bind(ip))

	ref, err := ipv6.ParseHeader(ip)
	require.NoError(t, err)

	require.Equal(t, uint8(ref.Version), h.Version())
	require.Equal(t, uint8(ref.TrafficClass), h.TrafficClass())
	require.Equal(t, uint32(ref.FlowLabel), h.FlowLabel())
	require.Equal(t, uint16(ref.PayloadLen), h.Length())
	require.Equal(t, uint8(ref.NextHeader), h.NextHeader())
	require.Equal(t, uint8(ref.HopLimit), h.HopLimit())
	require.Equal(t, v6Src, h.Source())
	require.Equal(t, v6Dst, h.Destination())
}

func Test_IPv6_PackedFields(t *testing.T) {
	ip := buildIPv6(0)

	var h header.IPv6
	require.True(t, h.Bind(ip))

	h.SetTrafficClass(0x0f)
	require.Equal(t, uint8(6), h.Version())
	require.Equal(t, uint8(0x0f), h.TrafficClass())
	require.Equal(t, uint32(0xabcde), h.FlowLabel())

	h.SetFlowLabel(0xfffffff1)
	require.Equal(t, uint32(0xffff1), h.FlowLabel())
	require.Equal(t, uint8(0x0f), h.TrafficClass())
	require.Equal(t, uint8(6), h.Version())

	h.SetVersion(6)
	ref, err := ipv6.ParseHeader(ip)
	require.NoError(t, err)
	require.Equal(t, 0x0f, ref.TrafficClass)
	require.Equal(t, 0xffff1, ref.FlowLabel)
}

func Test_IPv6_ForeignVersion(t *testing.T) {
	ip := buildIPv6(0)

	var h header.IPv6
	require.True(t, h.Bind(ip))
	require.Equal(t, []byte(ip), h.Bytes())

	h.SetVersion(5)
	h.SetTrafficClass(0x12)
	h.SetFlowLabel(0x34567)
	require.Equal(t, uint8(5), h.Version())
	require.Equal(t, 5, gheader.IPVersion(ip))

	tc, fl := ip.TOS()
	require.Equal(t, uint8(0x12), tc)
	require.Equal(t, uint32(0x34567), fl)
}

func Test_IPv6_Setters(t *testing.T) {
	ip := buildIPv6(8)

	var h header.IPv6
	require.True(t, h.Bind(ip))

	h.SetLength(8)
	h.SetNextHeader(header.ProtocolUDP)
	h.SetHopLimit(3)
	h.SetSource(v6Dst)
	h.SetDestination(v6Src)

	require.Equal(t, uint16(8), ip.PayloadLength())
	require.Equal(t, uint8(gheader.UDPProtocolNumber), ip.NextHeader())
	require.Equal(t, uint8(3), ip.HopLimit())
	require.Equal(t, v6Dst.As16(), ip.SourceAddress().As16())
	require.Equal(t, v6Src.As16(), ip.DestinationAddress().As16())
	require.Equal(t, v6Dst, h.Source())
	require.Equal(t, v6Src, h.Destination())

	h.SetSource(netip.MustParseAddr("10.0.0.1"))
	require.Equal(t, v6Dst, h.Source())
}

func Test_IPv6_Unbound(t *testing.T) {
	var h header.IPv6
	require.False(t, h.Bind(make([]byte, header.IPv6FixedSize-1)))

	h.SetFlowLabel(1)
	h.SetHopLimit(1)
	require.Zero(t, h.FlowLabel())
	require.Zero(t, h.HopLimit())
	require.Equal(t, netip.IPv6Unspecified(), h.Source())
	require.Equal(t, netip.IPv6Unspecified(), h.Destination())
}
