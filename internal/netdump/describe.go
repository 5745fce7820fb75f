package netdump

import (
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/header"
)

// views are the header views a Dumper parses every packet into.
type views struct {
	ip4    header.IPv4
	ip6    header.IPv6
	icmp   header.ICMP
	icmpv6 header.ICMPv6
	tcp    header.TCP
	udp    header.UDP
}

func (v *views) headers() divert.Headers {
	return divert.Headers{
		IPv4:   &v.ip4,
		IPv6:   &v.ip6,
		ICMP:   &v.icmp,
		ICMPv6: &v.icmpv6,
		TCP:    &v.tcp,
		UDP:    &v.udp,
	}
}

func tcpFlags(tcp *header.TCP) string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		name byte
	}{
		{tcp.Fin(), 'F'},
		{tcp.Syn(), 'S'},
		{tcp.Rst(), 'R'},
		{tcp.Psh(), 'P'},
		{tcp.Ack(), 'A'},
		{tcp.Urg(), 'U'},
	} {
		if f.set {
			b.WriteByte(f.name)
		}
	}
	return b.String()
}

// describe summarizes a parsed packet. pkt must be what v was bound to.
func (v *views) describe(pkt []byte) logrus.Fields {
	fields := logrus.Fields{}

	var first gopacket.LayerType
	switch {
	case v.ip4.Valid():
		fields["src"], fields["dst"] = v.ip4.Source(), v.ip4.Destination()
		first = layers.LayerTypeIPv4
	case v.ip6.Valid():
		fields["src"], fields["dst"] = v.ip6.Source(), v.ip6.Destination()
		first = layers.LayerTypeIPv6
	default:
		return fields
	}

	switch {
	case v.tcp.Valid():
		fields["proto"] = "tcp"
		fields["sport"], fields["dport"] = v.tcp.SourcePort(), v.tcp.DestinationPort()
		fields["flags"] = tcpFlags(&v.tcp)
	case v.udp.Valid():
		fields["proto"] = "udp"
		fields["sport"], fields["dport"] = v.udp.SourcePort(), v.udp.DestinationPort()
	case v.icmp.Valid():
		fields["proto"] = "icmp"
		fields["type"] = ipv4.ICMPType(v.icmp.Type()).String()
	case v.icmpv6.Valid():
		fields["proto"] = "icmpv6"
		fields["type"] = ipv6.ICMPType(v.icmpv6.Type()).String()
	}

	p := gopacket.NewPacket(pkt, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if app := p.ApplicationLayer(); app != nil {
		fields["app"] = app.LayerType().String()
	}
	return fields
}
