package netdump

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/process"
)

// Open opens the session described by cfg on b and applies its queue
// parameters.
func Open(b divert.Backend, cfg *Config) (*divert.Session, error) {
	s, err := divert.OpenBackend(b, cfg.Filter, cfg.LayerValue(), int16(cfg.Priority), cfg.Flags())
	if err != nil {
		return nil, err
	}

	params := []struct {
		p divert.Param
		v uint64
	}{
		{divert.QueueLength, cfg.Queue.Length},
		{divert.QueueTime, uint64(cfg.Queue.Time / time.Millisecond)},
		{divert.QueueSize, cfg.Queue.Size},
	}
	for _, e := range params {
		if e.v == 0 {
			continue
		}
		if err := s.SetParam(e.p, e.v); err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "netdump: set %v", e.p)
		}
	}
	return s, nil
}

// NewOptions builds dumper options from cfg. Close the returned sink, if
// any, after the dumper has stopped.
func NewOptions(cfg *Config, log logrus.FieldLogger) (Options, error) {
	opts := Options{
		Log:          log,
		Async:        cfg.Async,
		FetchTimeout: cfg.FetchTimeout,
		Reinject:     !cfg.Sniff,
		Recalculate:  cfg.Recalculate,
	}
	if cfg.Attribution.Enabled {
		names := process.NewNameCache(process.DefaultResolver(), cfg.Attribution.CacheSize, cfg.Attribution.CacheTTL)
		opts.Attribution = process.NewCache(process.DefaultSource(), names)
	}
	if cfg.Pcap != "" {
		sink, err := NewPcapSink(cfg.Pcap)
		if err != nil {
			return Options{}, err
		}
		opts.Sink = sink
	}
	return opts, nil
}
