package divert_test

import (
	"net/netip"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/header"
	"github.com/imgk/divert-net/internal/divertest"
)

var (
	local4  = netip.MustParseAddrPort("192.168.1.10:50000")
	remote4 = netip.MustParseAddrPort("8.8.8.8:53")
	local6  = netip.MustParseAddrPort("[fd00::10]:50000")
	remote6 = netip.MustParseAddrPort("[2001:db8::1]:443")
)

func open(t *testing.T, b *divertest.Backend, filter string) *divert.Session {
	t.Helper()
	s, err := divert.OpenBackend(b, filter, divert.LayerNetwork, divert.PriorityDefault, divert.FlagDefault)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func outbound() divert.Address {
	var addr divert.Address
	addr.SetLayer(divert.LayerNetwork)
	addr.SetOutbound(true)
	return addr
}

func Test_Session_OpenBlankFilter(t *testing.T) {
	b := divertest.New()

	for _, filter := range []string{"", "   ", "\t\n"} {
		_, err := divert.OpenBackend(b, filter, divert.LayerNetwork, 0, 0)
		require.True(t, errors.Is(err, divert.ErrEmptyFilter), filter)
	}
	require.Empty(t, b.Opens())
}

func Test_Session_OpenPriority(t *testing.T) {
	b := divertest.New()

	_, err := divert.OpenBackend(b, "true", divert.LayerNetwork, divert.PriorityHighest+1, 0)
	require.True(t, errors.Is(err, divert.ErrPriority))
	_, err = divert.OpenBackend(b, "true", divert.LayerNetwork, divert.PriorityLowest-1, 0)
	require.True(t, errors.Is(err, divert.ErrPriority))
	require.Empty(t, b.Opens())

	s, err := divert.OpenBackend(b, "true", divert.LayerNetwork, divert.PriorityLowest, divert.FlagSniff)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, divertest.OpenCall{
		Filter:   "true",
		Layer:    divert.LayerNetwork,
		Priority: divert.PriorityLowest,
		Flags:    divert.FlagSniff,
	}, b.Opens()[0])
}

func Test_Session_OpenReason(t *testing.T) {
	var tests = []struct {
		errno  syscall.Errno
		reason divert.Reason
	}{
		{divert.ErrnoFileNotFound, divert.ReasonFileNotFound},
		{divert.ErrnoAccessDenied, divert.ReasonAccessDenied},
		{divert.ErrnoInvalidParameter, divert.ReasonInvalidParameter},
		{divert.ErrnoInvalidImageHash, divert.ReasonInvalidSignature},
		{divert.ErrnoDriverBlocked, divert.ReasonDriverBlocked},
		{syscall.Errno(31), divert.ReasonUnknown},
	}

	for _, e := range tests {
		b := divertest.New()
		b.OpenErrno = e.errno

		s, err := divert.OpenBackend(b, "tcp", divert.LayerNetwork, 0, 0)
		require.Nil(t, s)

		var oe *divert.OpenError
		require.True(t, errors.As(err, &oe))
		require.Equal(t, e.reason, oe.Reason)
		require.Equal(t, "tcp", oe.Filter)
		require.True(t, errors.Is(err, e.errno))
	}
}

func Test_Session_CloseTwice(t *testing.T) {
	b := divertest.New()
	s, err := divert.OpenBackend(b, "true", divert.LayerNetwork, 0, 0)
	require.NoError(t, err)
	raw := s.Handle().Raw()

	require.NoError(t, s.Close())
	require.False(t, s.Handle().Valid())
	require.True(t, errors.Is(s.Close(), divert.ErrHandleClosed))
	require.Equal(t, 1, b.CloseCalls(raw))

	var addr divert.Address
	_, err = s.Receive(make([]byte, 64), &addr)
	require.True(t, errors.Is(err, divert.ErrInvalidHandle))
	_, err = s.Send(make([]byte, 64), &addr)
	require.True(t, errors.Is(err, divert.ErrInvalidHandle))
}

func Test_Session_ReceivePreconditions(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")

	var addr divert.Address
	_, err := s.Receive(nil, &addr)
	require.True(t, errors.Is(err, divert.ErrEmptyBuffer))
	_, err = s.Receive(make([]byte, 16), nil)
	require.True(t, errors.Is(err, divert.ErrNilAddress))
	_, err = s.Send(nil, &addr)
	require.True(t, errors.Is(err, divert.ErrEmptyBuffer))
	_, err = s.ReceiveAsync(make([]byte, 16), nil, nil)
	require.True(t, errors.Is(err, divert.ErrNilAddress))
}

func Test_Session_Receive(t *testing.T) {
	t.Run("outbound", func(t *testing.T) {
		b := divertest.New()
		s := open(t, b, "true")

		pkt := divertest.UDP(local4, remote4, []byte("query"))
		b.Inject(pkt, outbound())

		var buf = make([]byte, divert.MTUMax)
		var addr divert.Address
		addr.SetLoopback(true)
		addr.Network().InterfaceIndex = 9

		n, err := s.Receive(buf, &addr)
		require.NoError(t, err)
		require.Equal(t, uint(len(pkt)), n)
		require.Equal(t, pkt, buf[:n])
		require.Equal(t, divert.Outbound, addr.Direction())
		require.False(t, addr.Loopback())
		require.Zero(t, addr.InterfaceIndex())
		require.Equal(t, divert.LayerNetwork, addr.Layer())
	})

	t.Run("inbound", func(t *testing.T) {
		b := divertest.New()
		s := open(t, b, "true")

		var in divert.Address
		in.SetDirection(divert.Inbound)
		b.Inject(divertest.TCP(remote6, local6, 0x12, nil), in)

		var buf = make([]byte, divert.MTUMax)
		var addr divert.Address
		addr.SetOutbound(true)
		n, err := s.Receive(buf, &addr)
		require.NoError(t, err)
		require.Equal(t, divert.Inbound, addr.Direction())

		var (
			ip4 header.IPv4
			ip6 header.IPv6
			tcp header.TCP
		)
		require.True(t, s.ParsePacket(buf[:n], divert.Headers{IPv4: &ip4, IPv6: &ip6, TCP: &tcp}))
		require.False(t, ip4.Valid())
		require.True(t, ip6.Valid())
		require.Equal(t, remote6.Addr(), ip6.Source())
		require.Equal(t, local6.Port(), tcp.DestinationPort())
		require.True(t, tcp.Syn())
		require.True(t, tcp.Ack())
	})
}

func Test_Session_Shutdown(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")

	b.Inject(divertest.UDP(local4, remote4, nil), outbound())
	require.NoError(t, s.Shutdown(divert.ShutdownRecv))

	var addr divert.Address
	n, err := s.Receive(make([]byte, 64), &addr)
	require.NoError(t, err)
	require.Equal(t, uint(28), n)

	_, err = s.Receive(make([]byte, 64), &addr)
	var oe *divert.OpError
	require.True(t, errors.As(err, &oe))
	require.Equal(t, divert.ErrnoNoData, oe.Errno)
	require.True(t, errors.Is(err, divert.ErrnoNoData))
}

func Test_Session_Send(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")

	pkt := divertest.UDP(local4, remote4, []byte("hello"))
	addr := outbound()
	n, err := s.Send(pkt, &addr)
	require.NoError(t, err)
	require.Equal(t, uint(len(pkt)), n)

	sent := b.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, pkt, sent[0].Packet)
	require.True(t, sent[0].Address.Outbound())
}

func Test_Session_Params(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")

	v, err := s.GetParam(divert.QueueLength)
	require.NoError(t, err)
	require.Equal(t, uint64(divert.QueueLengthDefault), v)

	require.True(t, errors.Is(s.SetParam(divert.QueueLength, divert.QueueLengthMin-1), divert.ErrQueueLength))
	require.True(t, errors.Is(s.SetParam(divert.QueueTime, divert.QueueTimeMax+1), divert.ErrQueueTime))
	require.True(t, errors.Is(s.SetParam(divert.QueueSize, 0), divert.ErrQueueSize))
	require.True(t, errors.Is(s.SetParam(divert.VersionMajor, 3), divert.ErrParam))

	require.NoError(t, s.SetParam(divert.QueueLength, 1024))
	v, err = s.GetParam(divert.QueueLength)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), v)

	v, err = s.GetParam(divert.VersionMajor)
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)
}
