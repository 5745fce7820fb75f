package divertest

import (
	"strings"

	"github.com/imgk/divert-net"
)

// The fake engine understands a small subset of the filter language:
// field names joined by "and" and "or", with "and" binding tighter.
var fields = map[string]func(p divert.Packet, addr *divert.Address) bool{
	"true":     func(divert.Packet, *divert.Address) bool { return true },
	"false":    func(divert.Packet, *divert.Address) bool { return false },
	"ip":       func(p divert.Packet, _ *divert.Address) bool { return p.IPv4 != nil },
	"ipv6":     func(p divert.Packet, _ *divert.Address) bool { return p.IPv6 != nil },
	"tcp":      func(p divert.Packet, _ *divert.Address) bool { return p.TCP != nil },
	"udp":      func(p divert.Packet, _ *divert.Address) bool { return p.UDP != nil },
	"icmp":     func(p divert.Packet, _ *divert.Address) bool { return p.ICMP != nil },
	"icmpv6":   func(p divert.Packet, _ *divert.Address) bool { return p.ICMPv6 != nil },
	"inbound":  func(_ divert.Packet, a *divert.Address) bool { return !a.Outbound() },
	"outbound": func(_ divert.Packet, a *divert.Address) bool { return a.Outbound() },
	"loopback": func(_ divert.Packet, a *divert.Address) bool { return a.Loopback() },
}

// tokens splits filter on whitespace and reports the byte offset of the
// first token it does not know.
func tokens(filter string) ([]string, int, bool) {
	words := strings.Fields(filter)
	expectField := true
	offset := 0
	for _, w := range words {
		pos := offset + strings.Index(filter[offset:], w)
		offset = pos + len(w)

		w = strings.ToLower(w)
		if expectField {
			if _, ok := fields[w]; !ok {
				return nil, pos, false
			}
		} else if w != "and" && w != "or" {
			return nil, pos, false
		}
		expectField = !expectField
	}
	if expectField {
		return nil, len(filter), false
	}
	return words, 0, true
}

func (b *Backend) CheckFilter(filter string, _ divert.Layer) (bool, string, uint) {
	if _, pos, ok := tokens(filter); !ok {
		if pos == len(filter) {
			return false, "Filter expression incomplete", uint(pos)
		}
		return false, "Unexpected token", uint(pos)
	}
	return true, "", 0
}

func (b *Backend) EvalFilter(filter string, buffer []byte, address *divert.Address) (bool, error) {
	words, _, ok := tokens(filter)
	if !ok {
		return false, divert.ErrnoInvalidParameter
	}
	p, ok := decode(buffer)
	if !ok {
		return false, divert.ErrnoInvalidParameter
	}

	match, all := false, true
	for i := 0; i < len(words); i += 2 {
		all = all && fields[strings.ToLower(words[i])](p, address)
		if i+1 == len(words) || strings.EqualFold(words[i+1], "or") {
			match = match || all
			all = true
		}
	}
	return match, nil
}
