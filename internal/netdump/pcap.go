package netdump

import (
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/imgk/divert-net"
)

// PcapSink writes diverted packets to a pcap file with raw IP link type.
type PcapSink struct {
	mu sync.Mutex
	f  *os.File
	w  *pcapgo.Writer
}

func NewPcapSink(path string) (*PcapSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(divert.MTUMax, layers.LinkTypeRaw); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "netdump: pcap header %s", path)
	}
	return &PcapSink{f: f, w: w}, nil
}

func (s *PcapSink) Write(ts time.Time, pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(pkt), Length: len(pkt)}
	return errors.WithStack(s.w.WritePacket(ci, pkt))
}

func (s *PcapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
