// Package divertest provides an in-memory divert.Backend for tests.
//
// Injected frames are queued per backend and handed to the next receive.
// Overlapped receives that find the queue empty stay pending until a frame
// is injected or the handle is closed, and complete by filling the
// overlapped record and signalling its event the way the OS does.
package divertest

import (
	"sync"
	"syscall"
	"time"

	"github.com/imgk/divert-net"
)

// Errors the fake engine reports.
const (
	ErrnoInvalidHandle syscall.Errno = 6
	ErrnoNoData        syscall.Errno = divert.ErrnoNoData
)

// Frame is a packet together with its address record.
type Frame struct {
	Packet  []byte
	Address divert.Address
}

// OpenCall records the arguments of an Open.
type OpenCall struct {
	Filter   string
	Layer    divert.Layer
	Priority int16
	Flags    uint64
}

type engineHandle struct {
	closes   int
	shutdown bool
	params   map[divert.Param]uint64
}

type pendingIO struct {
	h       divert.RawHandle
	buffer  []byte
	address *divert.Address
	ov      *divert.Overlapped
	send    bool
}

type event struct {
	ch     chan struct{}
	once   sync.Once
	closes int
}

func (e *event) signal() { e.once.Do(func() { close(e.ch) }) }

// Backend is a fake engine and OS. The zero value is not usable; call New.
type Backend struct {
	mu   sync.Mutex
	cond *sync.Cond

	next    divert.RawHandle
	handles map[divert.RawHandle]*engineHandle
	events  map[divert.RawHandle]*event
	queue   []Frame
	pending []*pendingIO
	sent    []Frame
	opens   []OpenCall

	// OpenErrno makes Open fail with this code when non-zero.
	OpenErrno syscall.Errno
	// CreateEventErrno makes CreateEvent fail with this code when non-zero.
	CreateEventErrno syscall.Errno
	// HoldSends keeps overlapped sends pending until CompleteSends.
	HoldSends bool
	// Major and Minor are reported as the driver version.
	Major, Minor uint64
}

var _ divert.Backend = (*Backend)(nil)

// New returns an empty backend reporting driver version 2.2.
func New() *Backend {
	b := &Backend{
		next:    0x100,
		handles: map[divert.RawHandle]*engineHandle{},
		events:  map[divert.RawHandle]*event{},
		Major:   2,
		Minor:   2,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Backend) alloc() divert.RawHandle {
	b.next += 4
	return b.next
}

func (b *Backend) Open(filter string, layer divert.Layer, priority int16, flags uint64) (divert.RawHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens = append(b.opens, OpenCall{Filter: filter, Layer: layer, Priority: priority, Flags: flags})
	if b.OpenErrno != 0 {
		return divert.InvalidRawHandle, b.OpenErrno
	}
	h := b.alloc()
	b.handles[h] = &engineHandle{params: map[divert.Param]uint64{
		divert.QueueLength: divert.QueueLengthDefault,
		divert.QueueTime:   divert.QueueTimeDefault,
		divert.QueueSize:   divert.QueueSizeDefault,
	}}
	return h, nil
}

// live returns the state of an open handle. Callers hold b.mu.
func (b *Backend) live(h divert.RawHandle) (*engineHandle, error) {
	st, ok := b.handles[h]
	if !ok || st.closes > 0 {
		return nil, ErrnoInvalidHandle
	}
	return st, nil
}

func (b *Backend) Close(h divert.RawHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.handles[h]
	if !ok {
		return ErrnoInvalidHandle
	}
	st.closes++
	if st.closes > 1 {
		return ErrnoInvalidHandle
	}

	kept := b.pending[:0]
	for _, io := range b.pending {
		if io.h != h {
			kept = append(kept, io)
			continue
		}
		b.finish(io, 0, divert.ErrnoOperationAborted)
	}
	b.pending = kept
	b.cond.Broadcast()
	return nil
}

// finish completes an overlapped operation. Callers hold b.mu.
func (b *Backend) finish(io *pendingIO, n int, errno syscall.Errno) {
	io.ov.Internal = uintptr(errno)
	io.ov.InternalHigh = uintptr(n)
	if ev, ok := b.events[io.ov.HEvent]; ok {
		ev.signal()
	}
}

// deliver copies the head of the queue into buffer. Callers hold b.mu.
func (b *Backend) deliver(buffer []byte, address *divert.Address) int {
	f := b.queue[0]
	b.queue = b.queue[1:]
	if address != nil {
		*address = f.Address
	}
	return copy(buffer, f.Packet)
}

func (b *Backend) Recv(h divert.RawHandle, buffer []byte, address *divert.Address) (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		st, err := b.live(h)
		if err != nil {
			return 0, err
		}
		if len(b.queue) > 0 {
			return uint(b.deliver(buffer, address)), nil
		}
		if st.shutdown {
			return 0, ErrnoNoData
		}
		b.cond.Wait()
	}
}

func (b *Backend) RecvEx(h divert.RawHandle, buffer []byte, address *divert.Address, ov *divert.Overlapped) (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.live(h)
	if err != nil {
		return 0, err
	}
	if len(b.queue) > 0 {
		n := b.deliver(buffer, address)
		if ov != nil {
			b.finish(&pendingIO{ov: ov}, n, 0)
		}
		return uint(n), nil
	}
	if ov == nil || st.shutdown {
		return 0, ErrnoNoData
	}
	b.pending = append(b.pending, &pendingIO{h: h, buffer: buffer, address: address, ov: ov})
	return 0, divert.ErrnoIOPending
}

func (b *Backend) Send(h divert.RawHandle, buffer []byte, address *divert.Address) (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.live(h); err != nil {
		return 0, err
	}
	b.record(buffer, address)
	return uint(len(buffer)), nil
}

// record keeps a copy of an injected packet. Callers hold b.mu.
func (b *Backend) record(buffer []byte, address *divert.Address) {
	f := Frame{Packet: append([]byte(nil), buffer...)}
	if address != nil {
		f.Address = *address
	}
	b.sent = append(b.sent, f)
}

func (b *Backend) SendEx(h divert.RawHandle, buffer []byte, address *divert.Address, ov *divert.Overlapped) (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.live(h); err != nil {
		return 0, err
	}
	if ov != nil && b.HoldSends {
		b.pending = append(b.pending, &pendingIO{h: h, buffer: buffer, address: address, ov: ov, send: true})
		return 0, divert.ErrnoIOPending
	}
	b.record(buffer, address)
	if ov != nil {
		b.finish(&pendingIO{ov: ov}, len(buffer), 0)
	}
	return uint(len(buffer)), nil
}

func (b *Backend) Shutdown(h divert.RawHandle, how divert.Shutdown) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.live(h)
	if err != nil {
		return err
	}
	if how == divert.ShutdownRecv || how == divert.ShutdownBoth {
		st.shutdown = true
	}
	b.cond.Broadcast()
	return nil
}

func (b *Backend) GetParam(h divert.RawHandle, p divert.Param) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.live(h)
	if err != nil {
		return 0, err
	}
	switch p {
	case divert.VersionMajor:
		return b.Major, nil
	case divert.VersionMinor:
		return b.Minor, nil
	}
	v, ok := st.params[p]
	if !ok {
		return 0, divert.ErrnoInvalidParameter
	}
	return v, nil
}

func (b *Backend) SetParam(h divert.RawHandle, p divert.Param, v uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.live(h)
	if err != nil {
		return err
	}
	st.params[p] = v
	return nil
}

func (b *Backend) CreateEvent() (divert.RawHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.CreateEventErrno != 0 {
		return divert.InvalidRawHandle, b.CreateEventErrno
	}
	h := b.alloc()
	b.events[h] = &event{ch: make(chan struct{})}
	return h, nil
}

func (b *Backend) WaitEvent(ev divert.RawHandle, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	e, ok := b.events[ev]
	if ok && e.closes > 0 {
		ok = false
	}
	b.mu.Unlock()
	if !ok {
		return false, ErrnoInvalidHandle
	}

	if timeout < 0 {
		<-e.ch
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-e.ch:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (b *Backend) OverlappedResult(h divert.RawHandle, ov *divert.Overlapped) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errno := syscall.Errno(ov.Internal); errno != 0 {
		return 0, errno
	}
	return uint32(ov.InternalHigh), nil
}

func (b *Backend) CloseHandle(h divert.RawHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.events[h]
	if !ok {
		return ErrnoInvalidHandle
	}
	e.closes++
	if e.closes > 1 {
		return ErrnoInvalidHandle
	}
	return nil
}

// Inject queues a frame, completing the oldest pending receive if any.
func (b *Backend) Inject(packet []byte, address divert.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, Frame{Packet: append([]byte(nil), packet...), Address: address})
	for i, io := range b.pending {
		if io.send {
			continue
		}
		n := b.deliver(io.buffer, io.address)
		b.finish(io, n, 0)
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		break
	}
	b.cond.Broadcast()
}

// CompleteSends finishes every held overlapped send.
func (b *Backend) CompleteSends() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.pending[:0]
	for _, io := range b.pending {
		if !io.send {
			kept = append(kept, io)
			continue
		}
		b.record(io.buffer, io.address)
		b.finish(io, len(io.buffer), 0)
	}
	b.pending = kept
}

// Sent returns copies of every injected packet, oldest first.
func (b *Backend) Sent() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.sent...)
}

// Opens returns the arguments of every Open call.
func (b *Backend) Opens() []OpenCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpenCall(nil), b.opens...)
}

// CloseCalls is how many times Close reached the engine for h.
func (b *Backend) CloseCalls(h divert.RawHandle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.handles[h]; ok {
		return st.closes
	}
	return 0
}

// OpenEvents counts events created and not yet closed.
func (b *Backend) OpenEvents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.closes == 0 {
			n++
		}
	}
	return n
}

// Pending counts overlapped operations the fake has not completed.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Queued counts injected frames nobody has received yet.
func (b *Backend) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
