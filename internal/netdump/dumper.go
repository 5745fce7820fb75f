package netdump

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imgk/divert-net"
	"github.com/imgk/divert-net/process"
)

// Options controls what a Dumper does with every packet.
type Options struct {
	Log logrus.FieldLogger
	// Attribution resolves owning processes when set.
	Attribution *process.Cache
	// Sink receives a copy of every packet when set.
	Sink *PcapSink
	// Async uses overlapped I/O, polling with FetchTimeout.
	Async        bool
	FetchTimeout time.Duration
	// Reinject sends every packet back after it was logged.
	Reinject    bool
	Recalculate bool
}

// Stats counts what a Dumper has seen.
type Stats struct {
	Received   uint64
	Unparsed   uint64
	Attributed uint64
	Written    uint64
	Reinjected uint64
}

// Dumper receives packets from a session until its context ends.
type Dumper struct {
	s    *divert.Session
	opts Options

	buf   []byte
	addr  divert.Address
	views views
	hdrs  divert.Headers

	recv, send *divert.AsyncOperation
	stats      Stats
}

func NewDumper(s *divert.Session, opts Options) *Dumper {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	d := &Dumper{
		s:    s,
		opts: opts,
		buf:  make([]byte, divert.MTUMax),
	}
	d.hdrs = d.views.headers()
	return d
}

func (d *Dumper) Stats() Stats { return d.stats }

// Run dumps packets until ctx is done, then returns nil. In async mode an
// outstanding read is cancelled by closing the session.
func (d *Dumper) Run(ctx context.Context) error {
	if d.opts.Async {
		return d.runAsync(ctx)
	}
	return d.runSync(ctx)
}

func (d *Dumper) runSync(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		if err := d.s.Shutdown(divert.ShutdownRecv); err != nil {
			d.opts.Log.WithError(err).Warn("netdump: shutdown")
		}
	})
	defer stop()

	for {
		n, err := d.s.Receive(d.buf, &d.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := d.handle(ctx, d.buf[:n]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (d *Dumper) runAsync(ctx context.Context) error {
	d.recv = d.s.NewAsyncOperation()
	d.send = d.s.NewAsyncOperation()
	defer d.recv.Close()
	defer d.send.Close()

	for ctx.Err() == nil {
		immediate, err := d.s.ReceiveAsync(d.buf, &d.addr, d.recv)
		if err != nil {
			return err
		}
		if !immediate {
			if err := d.wait(ctx, d.recv); err != nil {
				return err
			}
		}
		if !d.recv.NoError() {
			if ctx.Err() != nil {
				return nil
			}
			return d.recv.Err()
		}
		if err := d.handle(ctx, d.buf[:d.recv.Length()]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// wait polls op until it leaves the pending state. When ctx ends or the
// wait itself fails, the session is closed so that the OS cancels op, and
// wait blocks until it has.
func (d *Dumper) wait(ctx context.Context, op *divert.AsyncOperation) error {
	for !op.Fetch(d.opts.FetchTimeout) {
		if op.State() != divert.StatePending {
			return nil
		}
		if ctx.Err() == nil && op.ErrorCode() == divert.ErrnoWaitTimeout {
			continue
		}

		cause := op.Err()
		if err := d.s.Close(); err != nil && !errors.Is(err, divert.ErrHandleClosed) {
			d.opts.Log.WithError(err).Warn("netdump: close session")
		}
		op.Fetch(-1)
		if ctx.Err() != nil {
			return nil
		}
		return cause
	}
	return nil
}

func (d *Dumper) handle(ctx context.Context, pkt []byte) error {
	d.stats.Received++

	fields := logrus.Fields{
		"dir": d.addr.Direction(),
		"len": len(pkt),
		"if":  d.addr.InterfaceIndex(),
	}
	parsed := d.s.ParsePacket(pkt, d.hdrs)
	if parsed {
		for k, v := range d.views.describe(pkt) {
			fields[k] = v
		}
	} else {
		d.stats.Unparsed++
	}

	if parsed && d.opts.Attribution != nil {
		owner, err := d.opts.Attribution.Lookup(&d.addr, d.hdrs)
		switch {
		case err != nil:
			d.opts.Log.WithError(err).Warn("netdump: attribution")
		case owner.Found:
			fields["pid"], fields["process"] = owner.PID, owner.Name
			d.stats.Attributed++
		}
	}
	d.opts.Log.WithFields(fields).Info("packet")

	if d.opts.Sink != nil {
		if err := d.opts.Sink.Write(time.Now(), pkt); err != nil {
			return err
		}
		d.stats.Written++
	}

	if !d.opts.Reinject {
		return nil
	}
	if d.opts.Recalculate {
		d.s.CalculateChecksums(pkt, divert.ChecksumDefault)
	}
	if err := d.reinject(ctx, pkt); err != nil {
		return err
	}
	d.stats.Reinjected++
	return nil
}

func (d *Dumper) reinject(ctx context.Context, pkt []byte) error {
	if !d.opts.Async {
		_, err := d.s.Send(pkt, &d.addr)
		return err
	}

	immediate, err := d.s.SendAsync(pkt, &d.addr, d.send)
	if err != nil {
		return err
	}
	if !immediate {
		if err := d.wait(ctx, d.send); err != nil {
			return err
		}
	}
	if !d.send.NoError() {
		return d.send.Err()
	}
	return nil
}
