package process

import (
	"github.com/pkg/errors"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/header"
)

// DefaultTableSize is the size a table starts with before its first query.
const DefaultTableSize = 4096

// Cache keeps one growable buffer per connection table and reuses it across
// lookups. It is not safe for concurrent use.
type Cache struct {
	src    TableSource
	names  *NameCache
	tables [kindCount][]byte
}

// NewCache returns a cache reading from src. names may be nil, in which case
// Lookup leaves Owner.Name empty.
func NewCache(src TableSource, names *NameCache) *Cache {
	return &Cache{src: src, names: names}
}

// Owner is the result of attributing a packet.
type Owner struct {
	Kind  Kind
	Port  uint16
	PID   uint32
	Name  string
	Found bool
}

// table queries kind into its cached buffer, regrowing it once to the size
// the source asks for.
func (c *Cache) table(kind Kind) ([]byte, error) {
	buf := c.tables[kind]
	if buf == nil {
		buf = make([]byte, DefaultTableSize)
		c.tables[kind] = buf
	}

	needed, err := c.src.Query(kind, buf)
	if insufficient(err) {
		buf = make([]byte, needed)
		c.tables[kind] = buf
		needed, err = c.src.Query(kind, buf)
		if insufficient(err) {
			return nil, errors.Wrapf(ErrTableGrowth, "%v table needs %d bytes", kind, needed)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "process: query %v table", kind)
	}
	return buf, nil
}

func insufficient(err error) bool {
	return errors.Is(err, divert.ErrnoInsufficientBuffer)
}

// lookup resolves port in kind. pid is returned unchanged when nothing
// owns the port.
func (c *Cache) lookup(kind Kind, port uint16, pid uint32) (uint32, bool, error) {
	buf, err := c.table(kind)
	if err != nil {
		return pid, false, err
	}
	owner, ok := scan(kind, buf, port)
	if !ok {
		return pid, false, nil
	}
	return owner, true, nil
}

type transport interface {
	Valid() bool
	SourcePort() uint16
	DestinationPort() uint16
}

// localPort is the port of the local endpoint: the sender of an outbound
// packet or the receiver of an inbound one.
func localPort(dir divert.Direction, t transport) uint16 {
	if dir == divert.Outbound {
		return t.SourcePort()
	}
	return t.DestinationPort()
}

func (c *Cache) lookupView(kind Kind, dir divert.Direction, t transport, pid uint32) (uint32, error) {
	if !t.Valid() {
		return pid, errors.WithStack(ErrNoTransport)
	}
	pid, _, err := c.lookup(kind, localPort(dir, t), pid)
	return pid, err
}

// LookupTCP4 returns the owner of the local port of tcp, or pid when the
// IPv4 TCP table has no such port.
func (c *Cache) LookupTCP4(dir divert.Direction, tcp *header.TCP, pid uint32) (uint32, error) {
	return c.lookupView(TCP4, dir, tcp, pid)
}

func (c *Cache) LookupTCP6(dir divert.Direction, tcp *header.TCP, pid uint32) (uint32, error) {
	return c.lookupView(TCP6, dir, tcp, pid)
}

func (c *Cache) LookupUDP4(dir divert.Direction, udp *header.UDP, pid uint32) (uint32, error) {
	return c.lookupView(UDP4, dir, udp, pid)
}

func (c *Cache) LookupUDP6(dir divert.Direction, udp *header.UDP, pid uint32) (uint32, error) {
	return c.lookupView(UDP6, dir, udp, pid)
}

// Lookup attributes a parsed packet. Packets without a bound TCP or UDP
// view over IPv4 or IPv6 yield a zero Owner.
func (c *Cache) Lookup(addr *divert.Address, hdrs divert.Headers) (Owner, error) {
	var (
		kind Kind
		t    transport
	)
	v4 := hdrs.IPv4 != nil && hdrs.IPv4.Valid()
	v6 := hdrs.IPv6 != nil && hdrs.IPv6.Valid()
	switch {
	case hdrs.TCP != nil && hdrs.TCP.Valid() && v4:
		kind, t = TCP4, hdrs.TCP
	case hdrs.TCP != nil && hdrs.TCP.Valid() && v6:
		kind, t = TCP6, hdrs.TCP
	case hdrs.UDP != nil && hdrs.UDP.Valid() && v4:
		kind, t = UDP4, hdrs.UDP
	case hdrs.UDP != nil && hdrs.UDP.Valid() && v6:
		kind, t = UDP6, hdrs.UDP
	default:
		return Owner{}, nil
	}

	o := Owner{Kind: kind, Port: localPort(addr.Direction(), t)}
	pid, found, err := c.lookup(kind, o.Port, 0)
	if err != nil {
		return o, err
	}
	o.PID, o.Found = pid, found
	if found && c.names != nil {
		o.Name = c.names.Name(pid)
	}
	return o, nil
}
