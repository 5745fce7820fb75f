package process

import (
	"context"
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
	psprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/imgk/divert-net"
)

// PortableSource builds connection tables from gopsutil's connection
// listing, laid out exactly as the OS helper would return them. Each Query
// takes a fresh snapshot, so a table can outgrow the size a previous Query
// reported just as it can on the OS.
type PortableSource struct {
	Context context.Context
}

func (s PortableSource) Query(kind Kind, buf []byte) (uint32, error) {
	ctx := s.Context
	if ctx == nil {
		ctx = context.Background()
	}
	conns, err := psnet.ConnectionsWithContext(ctx, kind.String())
	if err != nil {
		return 0, errors.WithStack(err)
	}

	need := TableSize(kind, len(conns))
	if len(buf) < need {
		return uint32(need), divert.ErrnoInsufficientBuffer
	}
	encodeTable(kind, conns, buf)
	return uint32(need), nil
}

// MIB_TCP_STATE values keyed by gopsutil status.
var tcpStates = map[string]uint32{
	"CLOSED":      1,
	"LISTEN":      2,
	"SYN_SENT":    3,
	"SYN_RECV":    4,
	"ESTABLISHED": 5,
	"FIN_WAIT1":   6,
	"FIN_WAIT2":   7,
	"CLOSE_WAIT":  8,
	"CLOSING":     9,
	"LAST_ACK":    10,
	"TIME_WAIT":   11,
	"DELETE":      12,
}

func encodeTable(kind Kind, conns []psnet.ConnectionStat, buf []byte) {
	l := layouts[kind]
	clear(buf[:TableSize(kind, len(conns))])
	binary.LittleEndian.PutUint32(buf, uint32(len(conns)))

	for i, c := range conns {
		row := buf[tableHeaderSize+i*l.size : tableHeaderSize+(i+1)*l.size]
		putAddr(row[l.local:l.local+l.addrLen], c.Laddr.IP)
		binary.BigEndian.PutUint16(row[l.port:], uint16(c.Laddr.Port))
		if l.remote >= 0 {
			putAddr(row[l.remote:l.remote+l.addrLen], c.Raddr.IP)
			binary.BigEndian.PutUint16(row[l.rport:], uint16(c.Raddr.Port))
		}
		if l.state >= 0 {
			binary.LittleEndian.PutUint32(row[l.state:], tcpStates[c.Status])
		}
		binary.LittleEndian.PutUint32(row[l.pid:], uint32(c.Pid))
	}
}

// putAddr writes ip in network order. Unparseable or mismatched addresses
// are left as the unspecified address.
func putAddr(dst []byte, ip string) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return
	}
	switch len(dst) {
	case 4:
		if addr = addr.Unmap(); addr.Is4() {
			a := addr.As4()
			copy(dst, a[:])
		}
	case 16:
		a := addr.As16()
		copy(dst, a[:])
	}
}

// PortableResolver looks image paths up through gopsutil.
type PortableResolver struct{}

func (PortableResolver) ImagePath(pid uint32) (string, error) {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return "", errors.WithStack(err)
	}
	exe, err := p.Exe()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return exe, nil
}
