package divert_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/internal/divertest"
)

func Test_Async_Timeout(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")
	op := s.NewAsyncOperation()

	var buf = make([]byte, divert.MTUMax)
	var addr divert.Address
	immediate, err := s.ReceiveAsync(buf, &addr, op)
	require.NoError(t, err)
	require.False(t, immediate)
	require.Equal(t, divert.StatePending, op.State())
	require.True(t, op.Pinned())

	require.False(t, op.Fetch(10*time.Millisecond))
	require.Equal(t, divert.ErrnoWaitTimeout, op.ErrorCode())
	require.Equal(t, divert.StatePending, op.State())
	require.True(t, op.Pinned())
	require.True(t, errors.Is(op.Reset(), divert.ErrOperationPending))
	require.True(t, errors.Is(op.Close(), divert.ErrOperationPending))

	pkt := divertest.UDP(local4, remote4, []byte("late"))
	b.Inject(pkt, outbound())

	require.True(t, op.Fetch(time.Second))
	require.True(t, op.NoError())
	require.Zero(t, op.ErrorCode())
	require.NoError(t, op.Err())
	require.Equal(t, uint32(len(pkt)), op.Length())
	require.Equal(t, divert.StateCompleted, op.State())
	require.False(t, op.Pinned())
	require.Equal(t, pkt, buf[:op.Length()])
	require.True(t, addr.Outbound())
	require.Zero(t, b.OpenEvents())

	// a completed operation keeps reporting its result
	require.True(t, op.Fetch(0))
}

func Test_Async_Immediate(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")
	op := s.NewAsyncOperation()

	pkt := divertest.TCP(local4, remote4, 0x02, nil)
	b.Inject(pkt, outbound())

	var buf = make([]byte, divert.MTUMax)
	var addr divert.Address
	immediate, err := s.ReceiveAsync(buf, &addr, op)
	require.NoError(t, err)
	require.True(t, immediate)
	require.Equal(t, divert.StateCompletedImmediately, op.State())
	require.Equal(t, uint32(len(pkt)), op.Length())
	require.False(t, op.Pinned())
	require.True(t, op.Fetch(0))
	require.Zero(t, b.OpenEvents())
}

func Test_Async_Reuse(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")
	op := s.NewAsyncOperation()

	var buf = make([]byte, divert.MTUMax)
	for i := 0; i < 3; i++ {
		var addr divert.Address
		immediate, err := s.ReceiveAsync(buf, &addr, op)
		require.NoError(t, err)
		require.False(t, immediate)

		pkt := divertest.UDP(local4, remote4, make([]byte, i+1))
		b.Inject(pkt, outbound())
		require.True(t, op.Fetch(time.Second))
		require.Equal(t, uint32(len(pkt)), op.Length())
	}
	require.NoError(t, op.Close())
	require.Zero(t, b.OpenEvents())
}

func Test_Async_AbortedByClose(t *testing.T) {
	b := divertest.New()
	s, err := divert.OpenBackend(b, "true", divert.LayerNetwork, 0, 0)
	require.NoError(t, err)
	op := s.NewAsyncOperation()

	var buf = make([]byte, 128)
	var addr divert.Address
	immediate, err := s.ReceiveAsync(buf, &addr, op)
	require.NoError(t, err)
	require.False(t, immediate)

	require.NoError(t, s.Close())
	require.False(t, op.Fetch(time.Second))
	require.Equal(t, divert.ErrnoOperationAborted, op.ErrorCode())
	require.Equal(t, divert.StateFailed, op.State())
	require.False(t, op.Pinned())

	var oe *divert.OpError
	require.True(t, errors.As(op.Err(), &oe))
	require.Equal(t, divert.ErrnoOperationAborted, oe.Errno)
}

func Test_Async_EventFailure(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")
	op := s.NewAsyncOperation()
	b.CreateEventErrno = 8

	var addr divert.Address
	immediate, err := s.ReceiveAsync(make([]byte, 64), &addr, op)
	require.Error(t, err)
	require.False(t, immediate)
	require.Equal(t, divert.StateIdle, op.State())
	require.Equal(t, uint32(8), uint32(op.ErrorCode()))
	require.False(t, op.Pinned())
	require.Zero(t, b.Pending())

	b.CreateEventErrno = 0
	require.NoError(t, op.Reset())
	require.Equal(t, divert.StateArmed, op.State())
	require.NoError(t, op.Close())
}

func Test_Async_NilOperation(t *testing.T) {
	b := divertest.New()
	s := open(t, b, "true")

	var buf = make([]byte, divert.MTUMax)
	var addr divert.Address
	ok, err := s.ReceiveAsync(buf, &addr, nil)
	require.NoError(t, err)
	require.False(t, ok)

	b.Inject(divertest.UDP(local4, remote4, nil), outbound())
	ok, err = s.ReceiveAsync(buf, &addr, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, addr.Outbound())

	n := gheader.IPv4(buf).TotalLength()
	require.Equal(t, uint16(28), n)
	ok, err = s.SendAsync(buf[:n], &addr, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, b.Sent(), 1)
	require.Len(t, b.Sent()[0].Packet, int(n))
}

// failingBackend reports engine failures that carry no native code.
type failingBackend struct {
	*divertest.Backend
}

func (failingBackend) RecvEx(divert.RawHandle, []byte, *divert.Address, *divert.Overlapped) (uint, error) {
	return 0, errors.New("engine gone")
}

func Test_Async_UncodedFailure(t *testing.T) {
	b := failingBackend{divertest.New()}
	s, err := divert.OpenBackend(b, "true", divert.LayerNetwork, 0, 0)
	require.NoError(t, err)
	defer s.Close()
	op := s.NewAsyncOperation()

	var addr divert.Address
	immediate, err := s.ReceiveAsync(make([]byte, 64), &addr, op)
	require.NoError(t, err)
	require.False(t, immediate)
	require.Equal(t, divert.StateFailed, op.State())
	require.False(t, op.NoError())
	require.Equal(t, divert.ErrnoGenFailure, op.ErrorCode())
	require.False(t, op.Pinned())

	var oe *divert.OpError
	require.True(t, errors.As(op.Err(), &oe))
	require.Equal(t, divert.ErrnoGenFailure, oe.Errno)
	require.NoError(t, op.Close())
}

func Test_Async_Send(t *testing.T) {
	b := divertest.New()
	b.HoldSends = true
	s := open(t, b, "true")
	op := s.NewAsyncOperation()

	pkt := divertest.UDP(local4, remote4, []byte("out"))
	addr := outbound()
	immediate, err := s.SendAsync(pkt, &addr, op)
	require.NoError(t, err)
	require.False(t, immediate)
	require.Equal(t, 1, b.Pending())
	require.Empty(t, b.Sent())

	b.CompleteSends()
	require.True(t, op.Fetch(time.Second))
	require.Equal(t, uint32(len(pkt)), op.Length())
	require.Len(t, b.Sent(), 1)
	require.False(t, op.Pinned())
}
