package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Name(t *testing.T) {
	r := &fakeResolver{paths: map[uint32]string{100: "/usr/bin/curl", 4: "ntoskrnl"}}

	require.Equal(t, "/usr/bin/curl", Name(r, 100))
	require.Equal(t, SystemName, Name(r, 101))
	require.Equal(t, SystemName, Name(r, 4))
	require.Equal(t, SystemName, Name(r, 0))
	require.Equal(t, 2, r.calls)
}

func Test_NameCache(t *testing.T) {
	r := &fakeResolver{paths: map[uint32]string{100: "/usr/bin/curl"}}
	c := NewNameCache(r, 2, time.Minute)

	for i := 0; i < 3; i++ {
		require.Equal(t, "/usr/bin/curl", c.Name(100))
		require.Equal(t, SystemName, c.Name(7))
	}
	require.Equal(t, 2, r.calls)
	require.Equal(t, 2, c.Len())

	c.Name(8)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 3, r.calls)
}
