package divert

import "unsafe"

// Flag bits of Address.Flags.
const (
	AddressSniffed     = 1 << 0
	AddressOutbound    = 1 << 1
	AddressLoopback    = 1 << 2
	AddressImpostor    = 1 << 3
	AddressIPv6        = 1 << 4
	AddressIPChecksum  = 1 << 5
	AddressTCPChecksum = 1 << 6
	AddressUDPChecksum = 1 << 7
)

// AddressSize is the size of the record the engine fills on every receive.
const AddressSize = int(unsafe.Sizeof(Address{}))

// Network is the union view for the network layers. Process IDs are not
// available here.
type Network struct {
	InterfaceIndex    uint32
	SubInterfaceIndex uint32
	_                 [7]uint64
}

// Socket is the union view for socket events such as bind, connect and close.
type Socket struct {
	EndpointID       uint64
	ParentEndpointID uint64
	ProcessID        uint32
	LocalAddress     [16]uint8
	RemoteAddress    [16]uint8
	LocalPort        uint16
	RemotePort       uint16
	Protocol         uint8
	_                [3]uint8
	_                uint32
}

// Flow is the union view for flow establishment and deletion events.
type Flow struct {
	EndpointID       uint64
	ParentEndpointID uint64
	ProcessID        uint32
	LocalAddress     [16]uint8
	RemoteAddress    [16]uint8
	LocalPort        uint16
	RemotePort       uint16
	Protocol         uint8
	_                [3]uint8
	_                uint32
}

// Reflect is the union view for events about other diversion handles.
type Reflect struct {
	TimeStamp int64
	ProcessID uint32
	layer     uint32
	Flags     uint64
	Priority  int16
	_         int16
	_         int32
	_         [4]uint64
}

func (r *Reflect) Layer() Layer {
	return Layer(r.layer)
}

// Address is the per-packet metadata record exchanged with the engine.
// Reset it before handing it to a receive call again.
type Address struct {
	Timestamp int64
	layer     uint8
	event     uint8
	Flags     uint8
	_         uint8
	_         uint32
	union     [64]uint8
}

// Reset zeroes the record.
func (a *Address) Reset() {
	*a = Address{}
}

func (a *Address) Layer() Layer {
	return Layer(a.layer)
}

func (a *Address) SetLayer(layer Layer) {
	a.layer = uint8(layer)
}

func (a *Address) Event() Event {
	return Event(a.event)
}

func (a *Address) SetEvent(event Event) {
	a.event = uint8(event)
}

func (a *Address) flag(bit uint8) bool {
	return a.Flags&bit == bit
}

func (a *Address) setFlag(bit uint8, v bool) {
	if v {
		a.Flags |= bit
	} else {
		a.Flags &^= bit
	}
}

func (a *Address) Sniffed() bool { return a.flag(AddressSniffed) }
func (a *Address) SetSniffed(v bool) { a.setFlag(AddressSniffed, v) }
func (a *Address) Outbound() bool { return a.flag(AddressOutbound) }
func (a *Address) SetOutbound(v bool) { a.setFlag(AddressOutbound, v) }
func (a *Address) Loopback() bool { return a.flag(AddressLoopback) }
func (a *Address) SetLoopback(v bool) { a.setFlag(AddressLoopback, v) }
func (a *Address) Impostor() bool { return a.flag(AddressImpostor) }
func (a *Address) SetImpostor(v bool) { a.setFlag(AddressImpostor, v) }
func (a *Address) IPv6() bool { return a.flag(AddressIPv6) }
func (a *Address) SetIPv6(v bool) { a.setFlag(AddressIPv6, v) }
func (a *Address) IPChecksum() bool { return a.flag(AddressIPChecksum) }
func (a *Address) SetIPChecksum(v bool) { a.setFlag(AddressIPChecksum, v) }
func (a *Address) TCPChecksum() bool { return a.flag(AddressTCPChecksum) }
func (a *Address) SetTCPChecksum(v bool) { a.setFlag(AddressTCPChecksum, v) }
func (a *Address) UDPChecksum() bool { return a.flag(AddressUDPChecksum) }
func (a *Address) SetUDPChecksum(v bool) { a.setFlag(AddressUDPChecksum, v) }

// Direction reports whether the packet was leaving or entering the host.
func (a *Address) Direction() Direction {
	return Direction(a.Outbound())
}

// SetDirection sets the outbound bit from d.
func (a *Address) SetDirection(d Direction) {
	a.SetOutbound(bool(d))
}

// InterfaceIndex is the index of the interface the packet arrived on or left by.
func (a *Address) InterfaceIndex() uint32 {
	return a.Network().InterfaceIndex
}

func (a *Address) SubInterfaceIndex() uint32 {
	return a.Network().SubInterfaceIndex
}

func (a *Address) Network() *Network {
	return (*Network)(unsafe.Pointer(&a.union))
}

func (a *Address) Socket() *Socket {
	return (*Socket)(unsafe.Pointer(&a.union))
}

func (a *Address) Flow() *Flow {
	return (*Flow)(unsafe.Pointer(&a.union))
}

func (a *Address) Reflect() *Reflect {
	return (*Reflect)(unsafe.Pointer(&a.union))
}
