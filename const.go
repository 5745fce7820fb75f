package divert

import "strconv"

// Layer selects which WinDivert layer a session is opened on.
type Layer int

const (
	LayerNetwork        Layer = 0
	LayerNetworkForward Layer = 1
	LayerFlow           Layer = 2
	LayerSocket         Layer = 3
	LayerReflect        Layer = 4
)

func (l Layer) String() string {
	switch l {
	case LayerNetwork:
		return "network"
	case LayerNetworkForward:
		return "network-forward"
	case LayerFlow:
		return "flow"
	case LayerSocket:
		return "socket"
	case LayerReflect:
		return "reflect"
	default:
		return "layer(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLayer is the inverse of Layer.String.
func ParseLayer(s string) (Layer, bool) {
	for l := LayerNetwork; l <= LayerReflect; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Event is the kind of event an Address describes.
type Event int

const (
	EventNetworkPacket   Event = 0
	EventFlowEstablished Event = 1
	EventFlowDeleted     Event = 2
	EventSocketBind      Event = 3
	EventSocketConnect   Event = 4
	EventSocketListen    Event = 5
	EventSocketAccept    Event = 6
	EventSocketClose     Event = 7
	EventReflectOpen     Event = 8
	EventReflectClose    Event = 9
)

// Shutdown selects which direction of a session to shut down.
type Shutdown int

const (
	ShutdownRecv Shutdown = 0
	ShutdownSend Shutdown = 1
	ShutdownBoth Shutdown = 2
)

// Param identifies a session parameter.
type Param int

const (
	QueueLength  Param = 0
	QueueTime    Param = 1
	QueueSize    Param = 2
	VersionMajor Param = 3
	VersionMinor Param = 4
)

func (p Param) String() string {
	switch p {
	case QueueLength:
		return "queue-length"
	case QueueTime:
		return "queue-time"
	case QueueSize:
		return "queue-size"
	case VersionMajor:
		return "version-major"
	case VersionMinor:
		return "version-minor"
	default:
		return "param(" + strconv.Itoa(int(p)) + ")"
	}
}

const (
	FlagDefault   = 0x0000
	FlagSniff     = 0x0001
	FlagDrop      = 0x0002
	FlagRecvOnly  = 0x0004
	FlagSendOnly  = 0x0008
	FlagNoInstall = 0x0010
	FlagFragments = 0x0020
)

const (
	PriorityDefault    = 0
	PriorityHighest    = 30000
	PriorityLowest     = -30000
	QueueLengthDefault = 4096
	QueueLengthMin     = 32
	QueueLengthMax     = 16384
	QueueTimeDefault   = 2000
	QueueTimeMin       = 100
	QueueTimeMax       = 16000
	QueueSizeDefault   = 4194304
	QueueSizeMin       = 65535
	QueueSizeMax       = 33554432
)

// ChecksumFlag suppresses parts of a checksum recalculation.
type ChecksumFlag uint64

const (
	ChecksumDefault  ChecksumFlag = 0
	ChecksumNoIP     ChecksumFlag = 1
	ChecksumNoICMP   ChecksumFlag = 2
	ChecksumNoICMPv6 ChecksumFlag = 4
	ChecksumNoTCP    ChecksumFlag = 8
	ChecksumNoUDP    ChecksumFlag = 16
	// ChecksumNoReplace keeps checksum fields that are already non-zero.
	// Session.CalculateChecksums resolves it into the flags above before
	// calling the engine.
	ChecksumNoReplace ChecksumFlag = 2048
)

const (
	BatchMax = 0xff
	MTUMax   = 40 + 0xffff
)

// Direction of a diverted packet relative to the local host.
type Direction bool

const (
	Inbound  Direction = false
	Outbound Direction = true
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// DefaultDLL is the image name the default backend loads.
const DefaultDLL = "WinDivert.dll"
