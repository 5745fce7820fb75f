package process

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/require"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/header"
)

type fakeSource struct {
	conns map[Kind][]psnet.ConnectionStat
	// growth rows are added to every table before each query
	growth  int
	err     error
	queries []int
}

func (s *fakeSource) Query(kind Kind, buf []byte) (uint32, error) {
	s.queries = append(s.queries, len(buf))
	if s.err != nil {
		return 0, s.err
	}
	for i := 0; i < s.growth; i++ {
		s.conns[kind] = append(s.conns[kind], conn("0.0.0.0", 1, 1))
	}
	conns := s.conns[kind]
	need := TableSize(kind, len(conns))
	if len(buf) < need {
		return uint32(need), divert.ErrnoInsufficientBuffer
	}
	encodeTable(kind, conns, buf)
	return uint32(need), nil
}

func conn(ip string, port uint32, pid int32) psnet.ConnectionStat {
	return psnet.ConnectionStat{
		Laddr:  psnet.Addr{IP: ip, Port: port},
		Raddr:  psnet.Addr{IP: ip, Port: 443},
		Status: "ESTABLISHED",
		Pid:    pid,
	}
}

func tcpView(src, dst uint16) *header.TCP {
	var tcp header.TCP
	tcp.Bind(make([]byte, header.TCPMinimumSize))
	tcp.SetSourcePort(src)
	tcp.SetDestinationPort(dst)
	return &tcp
}

func Test_Cache_LookupTCP4(t *testing.T) {
	src := &fakeSource{conns: map[Kind][]psnet.ConnectionStat{
		TCP4: {
			conn("192.168.1.10", 443, 10),
			conn("192.168.1.10", 50000, 1234),
			conn("192.168.1.10", 50000, 99),
		},
	}}
	c := NewCache(src, nil)
	tcp := tcpView(50000, 443)

	pid, err := c.LookupTCP4(divert.Outbound, tcp, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1234), pid)

	pid, err = c.LookupTCP4(divert.Inbound, tcp, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(10), pid)

	pid, err = c.LookupTCP4(divert.Outbound, tcpView(1, 2), 77)
	require.NoError(t, err)
	require.Equal(t, uint32(77), pid)

	// one buffer reused by every lookup
	require.Equal(t, []int{DefaultTableSize, DefaultTableSize, DefaultTableSize}, src.queries)
}

func Test_Cache_Tables(t *testing.T) {
	src := &fakeSource{conns: map[Kind][]psnet.ConnectionStat{
		TCP6: {conn("fd00::10", 8080, 6)},
		UDP4: {conn("0.0.0.0", 53, 4)},
		UDP6: {conn("::", 5353, 66)},
	}}
	c := NewCache(src, nil)

	pid, err := c.LookupTCP6(divert.Inbound, tcpView(40000, 8080), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(6), pid)

	var udp header.UDP
	udp.Bind(make([]byte, header.UDPSize))
	udp.SetSourcePort(53)
	pid, err = c.LookupUDP4(divert.Outbound, &udp, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(4), pid)

	udp.SetDestinationPort(5353)
	pid, err = c.LookupUDP6(divert.Inbound, &udp, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(66), pid)

	// the IPv4 TCP table is empty
	pid, err = c.LookupTCP4(divert.Inbound, tcpView(40000, 8080), 3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), pid)
}

func Test_Cache_Grow(t *testing.T) {
	var conns []psnet.ConnectionStat
	for i := 0; i < 300; i++ {
		conns = append(conns, conn("10.0.0.1", uint32(1000+i), int32(i)))
	}
	src := &fakeSource{conns: map[Kind][]psnet.ConnectionStat{TCP4: conns}}
	c := NewCache(src, nil)

	pid, err := c.LookupTCP4(divert.Outbound, tcpView(1299, 80), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(299), pid)

	size := TableSize(TCP4, 300)
	require.Greater(t, size, DefaultTableSize)
	require.Equal(t, []int{DefaultTableSize, size}, src.queries)

	_, err = c.LookupTCP4(divert.Outbound, tcpView(1000, 80), 0)
	require.NoError(t, err)
	require.Equal(t, []int{DefaultTableSize, size, size}, src.queries)
}

func Test_Cache_GrowOnlyOnce(t *testing.T) {
	src := &fakeSource{
		conns:  map[Kind][]psnet.ConnectionStat{UDP4: make([]psnet.ConnectionStat, 400)},
		growth: 10,
	}
	c := NewCache(src, nil)

	var udp header.UDP
	udp.Bind(make([]byte, header.UDPSize))
	pid, err := c.LookupUDP4(divert.Outbound, &udp, 5)
	require.True(t, errors.Is(err, ErrTableGrowth))
	require.Equal(t, uint32(5), pid)
	require.Len(t, src.queries, 2)
}

func Test_Cache_Errors(t *testing.T) {
	src := &fakeSource{err: divert.ErrnoAccessDenied}
	c := NewCache(src, nil)

	_, err := c.LookupTCP4(divert.Outbound, tcpView(1, 2), 0)
	require.True(t, errors.Is(err, divert.ErrnoAccessDenied))

	_, err = c.LookupTCP4(divert.Outbound, &header.TCP{}, 0)
	require.True(t, errors.Is(err, ErrNoTransport))
	_, err = c.LookupUDP6(divert.Outbound, nil, 0)
	require.True(t, errors.Is(err, ErrNoTransport))
}

type fakeResolver struct {
	paths map[uint32]string
	calls int
}

func (r *fakeResolver) ImagePath(pid uint32) (string, error) {
	r.calls++
	if p, ok := r.paths[pid]; ok {
		return p, nil
	}
	return "", errors.New("access denied")
}

func Test_Cache_Lookup(t *testing.T) {
	src := &fakeSource{conns: map[Kind][]psnet.ConnectionStat{
		UDP6: {conn("fd00::10", 50000, 1234)},
	}}
	r := &fakeResolver{paths: map[uint32]string{1234: `C:\Windows\System32\svchost.exe`}}
	c := NewCache(src, NewNameCache(r, 16, 0))

	b := make([]byte, header.IPv6FixedSize+header.UDPSize)
	var (
		ip4 header.IPv4
		ip6 header.IPv6
		udp header.UDP
	)
	ip6.Bind(b[:header.IPv6FixedSize])
	udp.Bind(b[header.IPv6FixedSize:])
	udp.SetSourcePort(50000)
	udp.SetDestinationPort(53)
	hdrs := divert.Headers{IPv4: &ip4, IPv6: &ip6, UDP: &udp}

	var addr divert.Address
	addr.SetDirection(divert.Outbound)
	o, err := c.Lookup(&addr, hdrs)
	require.NoError(t, err)
	require.Equal(t, Owner{Kind: UDP6, Port: 50000, PID: 1234, Name: `C:\Windows\System32\svchost.exe`, Found: true}, o)

	addr.SetDirection(divert.Inbound)
	o, err = c.Lookup(&addr, hdrs)
	require.NoError(t, err)
	require.Equal(t, Owner{Kind: UDP6, Port: 53}, o)

	o, err = c.Lookup(&addr, divert.Headers{IPv6: &ip6})
	require.NoError(t, err)
	require.Equal(t, Owner{}, o)
	require.Equal(t, 1, r.calls)
}

func Test_EncodeTable(t *testing.T) {
	conns := []psnet.ConnectionStat{{
		Laddr:  psnet.Addr{IP: "fd00::1", Port: 0x1f90},
		Raddr:  psnet.Addr{IP: "2001:db8::2", Port: 443},
		Status: "LISTEN",
		Pid:    42,
	}}
	buf := make([]byte, TableSize(TCP6, 1))
	encodeTable(TCP6, conns, buf)

	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf))
	row := buf[tableHeaderSize:]
	require.Equal(t, byte(0xfd), row[0])
	require.Equal(t, byte(0x01), row[15])
	require.Equal(t, []byte{0x1f, 0x90, 0, 0}, row[20:24])
	require.Equal(t, byte(0x20), row[24])
	require.Equal(t, uint16(443), binary.BigEndian.Uint16(row[44:]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(row[48:]))
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(row[52:]))

	buf = make([]byte, TableSize(UDP4, 1))
	encodeTable(UDP4, []psnet.ConnectionStat{conn("::ffff:10.1.2.3", 53, 7)}, buf)
	require.Equal(t, []byte{10, 1, 2, 3}, buf[4:8])

	pid, ok := scan(UDP4, buf, 53)
	require.True(t, ok)
	require.Equal(t, uint32(7), pid)
}
