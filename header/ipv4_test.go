package header_test

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/imgk/divert-net/header"
)

func buildIPv4(t require.TestingT) gheader.IPv4 {
	ip := make(gheader.IPv4, gheader.IPv4MinimumSize+gheader.UDPMinimumSize)
	ip.Encode(&gheader.IPv4Fields{
		TOS:            0x10,
		TotalLength:    uint16(len(ip)),
		ID:             0xbeef,
		Flags:          gheader.IPv4FlagDontFragment,
		FragmentOffset: 185 * 8,
		TTL:            64,
		Protocol:       uint8(gheader.UDPProtocolNumber),
		SrcAddr:        tcpip.AddrFrom4([4]byte{10, 0, 0, 1}),
		DstAddr:        tcpip.AddrFrom4([4]byte{192, 168, 1, 2}),
	})
	ip.SetChecksum(^ip.CalculateChecksum())
	require.Equal(t, uint16(0xffff), ip.CalculateChecksum())
	return ip
}

func Test_IPv4_Fields(t *testing.T) {
	ip := buildIPv4(t)

	var h header.IPv4
	require.True(t, h.Bind(ip))
	require.True(t, h.Valid())

	tos, _ := ip.TOS()
	require.Equal(t, uint8(4), h.Version())
	require.Equal(t, uint8(5), h.HeaderLength())
	require.Equal(t, tos, h.TOS())
	require.Equal(t, ip.TotalLength(), h.Length())
	require.Equal(t, uint16(0xbeef), h.ID())
	require.True(t, h.DF())
	require.False(t, h.MF())
	require.False(t, h.Reserved())
	require.Equal(t, uint16(185), h.FragmentOffset())
	require.Equal(t, uint8(64), h.TTL())
	require.Equal(t, uint8(header.ProtocolUDP), h.Protocol())
	require.Equal(t, ip.Checksum(), h.Checksum())
	require.Equal(t, netip.MustParseAddr("10.0.0.1"), h.Source())
	require.Equal(t, netip.MustParseAddr("192.168.1.2"), h.Destination())
}

func Test_IPv4_PackedFlags(t *testing.T) {
	ip := buildIPv4(t)

	var h header.IPv4
	require.True(t, h.Bind(ip))

	t.Run("offset keeps flags", func(t *testing.T) {
		h.SetFragmentOffset(0xffff)
		require.Equal(t, uint16(0x1fff), h.FragmentOffset())
		require.True(t, h.DF())
		require.False(t, h.MF())
		require.False(t, h.Reserved())
	})

	t.Run("flags keep offset", func(t *testing.T) {
		h.SetFragmentOffset(42)
		h.SetMF(true)
		h.SetDF(false)
		h.SetReserved(true)

		require.Equal(t, uint16(42), h.FragmentOffset())
		require.True(t, h.MF())
		require.False(t, h.DF())
		require.True(t, h.Reserved())
		require.Equal(t, uint16(0xa000|42), binary.BigEndian.Uint16(ip[6:]))
		require.Equal(t, uint16(42*8), ip.FragmentOffset())
	})

	t.Run("header length keeps version", func(t *testing.T) {
		h.SetHeaderLength(6)
		require.Equal(t, uint8(4), h.Version())
		require.Equal(t, uint8(6), h.HeaderLength())
		h.SetHeaderLength(5)

		h.SetVersion(7)
		h.SetHeaderLength(6)
		require.Equal(t, uint8(7), h.Version())
		require.Equal(t, 24, int(ip.HeaderLength()))
		h.SetVersion(4)
		h.SetHeaderLength(5)
	})
}

func Test_IPv4_Setters(t *testing.T) {
	ip := buildIPv4(t)

	var h header.IPv4
	require.True(t, h.Bind(ip))

	h.SetTOS(0x2e)
	h.SetLength(1500)
	h.SetID(7)
	h.SetTTL(1)
	h.SetProtocol(header.ProtocolTCP)
	h.SetSource(netip.MustParseAddr("1.2.3.4"))
	h.SetDestination(netip.MustParseAddr("5.6.7.8"))
	h.SetChecksum(0)
	ip.SetChecksum(^ip.CalculateChecksum())

	tos, _ := ip.TOS()
	require.Equal(t, uint8(0x2e), tos)
	require.Equal(t, uint16(1500), ip.TotalLength())
	require.Equal(t, uint16(7), ip.ID())
	require.Equal(t, uint8(1), ip.TTL())
	require.Equal(t, uint8(gheader.TCPProtocolNumber), ip.Protocol())
	require.Equal(t, [4]byte{1, 2, 3, 4}, ip.SourceAddress().As4())
	require.Equal(t, [4]byte{5, 6, 7, 8}, ip.DestinationAddress().As4())
	require.Equal(t, ip.Checksum(), h.Checksum())

	// an IPv6 address does not fit an IPv4 header
	h.SetSource(netip.MustParseAddr("::1"))
	require.Equal(t, netip.MustParseAddr("1.2.3.4"), h.Source())
}

func Test_IPv4_AddressCache(t *testing.T) {
	ip := buildIPv4(t)

	var h header.IPv4
	require.True(t, h.Bind(ip))

	first := h.Source()
	require.Equal(t, first, h.Source())

	copy(ip[12:16], []byte{172, 16, 0, 9})
	require.Equal(t, netip.MustParseAddr("172.16.0.9"), h.Source())
	require.Equal(t, netip.MustParseAddr("192.168.1.2"), h.Destination())
}

func Test_IPv4_Unbound(t *testing.T) {
	var h header.IPv4
	require.False(t, h.Valid())
	require.False(t, h.Bind(make([]byte, header.IPv4MinimumSize-1)))
	require.False(t, h.Valid())

	h.SetTTL(9)
	h.SetDF(true)
	h.SetSource(netip.MustParseAddr("1.1.1.1"))
	require.Zero(t, h.TTL())
	require.Zero(t, h.Length())
	require.False(t, h.DF())
	require.Equal(t, netip.IPv4Unspecified(), h.Source())
	require.Equal(t, netip.IPv4Unspecified(), h.Destination())

	ip := buildIPv4(t)
	require.True(t, h.Bind(ip))
	h.Unbind()
	require.False(t, h.Valid())
	require.Nil(t, h.Bytes())
}
