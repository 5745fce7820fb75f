// Package process attributes captured TCP and UDP packets to the process
// that owns their local endpoint.
//
// Attribution reads the OS connection tables in their native row layouts
// (MIB_TCPROW2, MIB_TCP6ROW2, MIB_UDPROW_OWNER_PID, MIB_UDP6ROW_OWNER_PID).
// Each table starts with a 32-bit entry count followed by fixed-size rows.
// Ports are stored in network byte order in the low 16 bits of a DWORD and
// owning process ids in host order.
package process

import (
	"encoding/binary"
	"strconv"

	"github.com/pkg/errors"
)

// Kind selects one of the four connection tables.
type Kind int

const (
	TCP4 Kind = iota
	TCP6
	UDP4
	UDP6

	kindCount
)

func (k Kind) String() string {
	switch k {
	case TCP4:
		return "tcp4"
	case TCP6:
		return "tcp6"
	case UDP4:
		return "udp4"
	case UDP6:
		return "udp6"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

var (
	// ErrTableGrowth is returned when a table is still too small after being
	// regrown to the size the OS asked for.
	ErrTableGrowth = errors.New("process: connection table grew during query")
	// ErrNoTransport is returned when the header view to attribute is unbound.
	ErrNoTransport = errors.New("process: no transport header bound")
)

// TableSource fills connection tables. When buf is too small Query returns
// the size it needs together with an error carrying
// divert.ErrnoInsufficientBuffer.
type TableSource interface {
	Query(kind Kind, buf []byte) (needed uint32, err error)
}

// layout locates the fields of one table row. Offsets of -1 mark fields
// the row does not have.
type layout struct {
	size    int
	state   int
	local   int
	port    int
	remote  int
	rport   int
	pid     int
	addrLen int
}

var layouts = [kindCount]layout{
	TCP4: {size: 28, state: 0, local: 4, port: 8, remote: 12, rport: 16, pid: 20, addrLen: 4},
	TCP6: {size: 60, state: 48, local: 0, port: 20, remote: 24, rport: 44, pid: 52, addrLen: 16},
	UDP4: {size: 12, state: -1, local: 0, port: 4, remote: -1, rport: -1, pid: 8, addrLen: 4},
	UDP6: {size: 28, state: -1, local: 0, port: 20, remote: -1, rport: -1, pid: 24, addrLen: 16},
}

const tableHeaderSize = 4

// TableSize is the number of bytes a table of kind with n rows occupies.
func TableSize(kind Kind, n int) int {
	return tableHeaderSize + n*layouts[kind].size
}

// rows returns the number of complete rows buf holds.
func rows(kind Kind, buf []byte) int {
	if len(buf) < tableHeaderSize {
		return 0
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if limit := (len(buf) - tableHeaderSize) / layouts[kind].size; n > limit {
		n = limit
	}
	return n
}

// scan returns the owner of the first row whose local port equals port.
func scan(kind Kind, buf []byte, port uint16) (uint32, bool) {
	l := layouts[kind]
	n := rows(kind, buf)
	for i := 0; i < n; i++ {
		row := buf[tableHeaderSize+i*l.size:]
		if binary.BigEndian.Uint16(row[l.port:]) == port {
			return binary.LittleEndian.Uint32(row[l.pid:]), true
		}
	}
	return 0, false
}
