package divert

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Session is an open diversion channel: one engine handle plus the backend
// that serves it. Sends and receives may run concurrently; Close and
// SetParam must not race in-flight I/O.
type Session struct {
	backend Backend
	handle  *Handle
	filter  string
	layer   Layer
}

// Open opens a session on the default backend.
func Open(filter string, layer Layer, priority int16, flags uint64) (*Session, error) {
	b, err := DefaultBackend()
	if err != nil {
		return nil, err
	}
	return OpenBackend(b, filter, layer, priority, flags)
}

// OpenBackend opens a session on b. A blank filter is rejected before the
// engine is consulted. Engine refusals come back as *OpenError.
func OpenBackend(b Backend, filter string, layer Layer, priority int16, flags uint64) (*Session, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, errors.WithStack(ErrEmptyFilter)
	}
	if priority < PriorityLowest || priority > PriorityHighest {
		return nil, errors.WithStack(ErrPriority)
	}

	raw, err := b.Open(filter, layer, priority, flags)
	if err == nil && raw == InvalidRawHandle {
		err = errors.New("engine returned an invalid handle")
	}
	if err != nil {
		errno, ok := errnoOf(err)
		if !ok {
			return nil, errors.Wrapf(err, "divert: open %q", filter)
		}
		return nil, &OpenError{Filter: filter, Reason: reasonOf(errno), Errno: errno}
	}

	logger.WithFields(logrus.Fields{
		"filter":   filter,
		"layer":    layer,
		"priority": priority,
	}).Debug("divert: session opened")
	return wrapSession(b, raw, filter, layer), nil
}

func wrapSession(b Backend, raw RawHandle, filter string, layer Layer) *Session {
	return &Session{
		backend: b,
		handle:  newEngineHandle(b, raw),
		filter:  filter,
		layer:   layer,
	}
}

// Filter returns the filter the session was opened with.
func (s *Session) Filter() string { return s.filter }

func (s *Session) Layer() Layer { return s.layer }

// Handle exposes the engine handle of the session.
func (s *Session) Handle() *Handle { return s.handle }

// NewAsyncOperation returns an operation backed by the session's backend.
func (s *Session) NewAsyncOperation() *AsyncOperation {
	return NewAsyncOperation(s.backend)
}

func (s *Session) raw() (RawHandle, error) {
	raw := s.handle.Raw()
	if raw == InvalidRawHandle {
		return raw, errors.WithStack(ErrInvalidHandle)
	}
	return raw, nil
}

func checkIO(buffer []byte, address *Address) error {
	if len(buffer) == 0 {
		return errors.WithStack(ErrEmptyBuffer)
	}
	if address == nil {
		return errors.WithStack(ErrNilAddress)
	}
	return nil
}

// Receive blocks until a packet matching the filter is queued and copies it
// into buffer. address is reset first and filled by the engine.
//
// Engine failures are returned as *OpError. That includes the end of a
// drained queue after Shutdown(ShutdownRecv), which carries ErrnoNoData.
func (s *Session) Receive(buffer []byte, address *Address) (uint, error) {
	if err := checkIO(buffer, address); err != nil {
		return 0, err
	}
	address.Reset()

	raw, err := s.raw()
	if err != nil {
		return 0, err
	}
	n, err := s.backend.Recv(raw, buffer, address)
	if err != nil {
		return 0, opError("recv", err)
	}
	return n, nil
}

// ReceiveAsync issues an overlapped receive and reports whether it completed
// immediately, in which case op.Length is already set. Otherwise op is
// either pending, to be collected with Fetch, or failed with its error
// fields populated.
//
// A nil op issues the read without an overlapped record. Only an immediate
// completion is reported, and its length is dropped: callers take it from
// the IP header of the packet in buffer.
func (s *Session) ReceiveAsync(buffer []byte, address *Address, op *AsyncOperation) (bool, error) {
	if err := checkIO(buffer, address); err != nil {
		return false, err
	}
	address.Reset()

	raw, err := s.raw()
	if err != nil {
		return false, err
	}
	if op == nil {
		_, err := s.backend.RecvEx(raw, buffer, address, nil)
		return err == nil, nil
	}

	if err := op.arm(raw, buffer, address); err != nil {
		return false, err
	}
	n, err := s.backend.RecvEx(raw, buffer, address, op.overlapped)
	return op.issued(n, err), nil
}

// Send injects buffer with the metadata in address.
func (s *Session) Send(buffer []byte, address *Address) (uint, error) {
	if err := checkIO(buffer, address); err != nil {
		return 0, err
	}

	raw, err := s.raw()
	if err != nil {
		return 0, err
	}
	n, err := s.backend.Send(raw, buffer, address)
	if err != nil {
		return 0, opError("send", err)
	}
	return n, nil
}

// SendAsync is the overlapped form of Send, with the same contract as
// ReceiveAsync. With a nil op the length sent is dropped; it is all of buffer
// on success.
func (s *Session) SendAsync(buffer []byte, address *Address, op *AsyncOperation) (bool, error) {
	if err := checkIO(buffer, address); err != nil {
		return false, err
	}

	raw, err := s.raw()
	if err != nil {
		return false, err
	}
	if op == nil {
		_, err := s.backend.SendEx(raw, buffer, address, nil)
		return err == nil, nil
	}

	if err := op.arm(raw, buffer, address); err != nil {
		return false, err
	}
	n, err := s.backend.SendEx(raw, buffer, address, op.overlapped)
	return op.issued(n, err), nil
}

// Shutdown stops receiving, sending or both while keeping the handle open.
func (s *Session) Shutdown(how Shutdown) error {
	raw, err := s.raw()
	if err != nil {
		return err
	}
	if err := s.backend.Shutdown(raw, how); err != nil {
		return opError("shutdown", err)
	}
	return nil
}

// Close closes the session. A second Close returns ErrHandleClosed.
func (s *Session) Close() error {
	if err := s.handle.Close(); err != nil {
		return err
	}
	logger.WithField("filter", s.filter).Debug("divert: session closed")
	return nil
}

func (s *Session) GetParam(p Param) (uint64, error) {
	raw, err := s.raw()
	if err != nil {
		return 0, err
	}
	v, err := s.backend.GetParam(raw, p)
	if err != nil {
		return 0, opError("get "+p.String(), err)
	}
	return v, nil
}

// SetParam sets a queue parameter after checking it against the engine's
// documented range. Version parameters are read-only.
func (s *Session) SetParam(p Param, v uint64) error {
	switch p {
	case QueueLength:
		if v < QueueLengthMin || v > QueueLengthMax {
			return errors.WithStack(ErrQueueLength)
		}
	case QueueTime:
		if v < QueueTimeMin || v > QueueTimeMax {
			return errors.WithStack(ErrQueueTime)
		}
	case QueueSize:
		if v < QueueSizeMin || v > QueueSizeMax {
			return errors.WithStack(ErrQueueSize)
		}
	default:
		return errors.WithStack(ErrParam)
	}

	raw, err := s.raw()
	if err != nil {
		return err
	}
	if err := s.backend.SetParam(raw, p, v); err != nil {
		return opError("set "+p.String(), err)
	}
	return nil
}
