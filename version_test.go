package divert_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/internal/divertest"
)

func Test_VersionOf(t *testing.T) {
	b := divertest.New()

	ver, err := divert.VersionOf(b)
	require.NoError(t, err)
	require.Equal(t, "2.2", ver)

	opens := b.Opens()
	require.Len(t, opens, 1)
	require.Equal(t, "false", opens[0].Filter)
	require.Zero(t, b.OpenEvents())
}

func Test_SetDefaultBackend(t *testing.T) {
	old := divertest.New()
	old.Major = 1
	require.Error(t, divert.SetDefaultBackend(old))

	b := divertest.New()
	b.Minor = 1
	require.NoError(t, divert.SetDefaultBackend(b))

	got, err := divert.DefaultBackend()
	require.NoError(t, err)
	require.Same(t, b, got)

	ver, err := divert.GetVersion()
	require.NoError(t, err)
	require.Equal(t, "2.1", ver)

	ok, msg := divert.ValidateFilter("tcp or udp", divert.LayerNetwork)
	require.True(t, ok)
	require.Empty(t, msg)

	ok, msg = divert.ValidateFilter("tcp or", divert.LayerNetwork)
	require.False(t, ok)
	require.Contains(t, msg, "position 6")

	s, err := divert.Open("tcp", divert.LayerNetwork, divert.PriorityDefault, divert.FlagDefault)
	require.NoError(t, err)
	require.Equal(t, "tcp", s.Filter())
	require.Equal(t, divert.LayerNetwork, s.Layer())
	require.NoError(t, s.Close())
}
