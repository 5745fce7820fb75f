package divert

import (
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OpState is the lifecycle position of an AsyncOperation.
type OpState int

const (
	StateIdle OpState = iota
	StateArmed
	StateIssued
	StateCompletedImmediately
	StatePending
	StateCompleted
	StateFailed
)

func (s OpState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateIssued:
		return "issued"
	case StateCompletedImmediately:
		return "completed-immediately"
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AsyncOperation tracks one overlapped receive or send.
//
// The packet buffer, the address record and the overlapped record stay
// pinned from the moment the operation is issued until the OS confirms
// completion through Fetch, or the issuing call completes or fails
// synchronously. An operation serves one outstanding I/O at a time and is
// re-armed by the next ReceiveAsync or SendAsync.
type AsyncOperation struct {
	sys        System
	overlapped *Overlapped
	event      *Handle
	target     RawHandle

	pinner runtime.Pinner
	pinned bool

	state     OpState
	completed bool
	errno     syscall.Errno
	length    uint32
}

// NewAsyncOperation returns an idle operation whose events come from sys.
func NewAsyncOperation(sys System) *AsyncOperation {
	return &AsyncOperation{
		sys:        sys,
		overlapped: new(Overlapped),
		target:     InvalidRawHandle,
	}
}

// Reset clears the previous result and arms a fresh completion event. It
// refuses to touch an operation the OS still owns. When the event cannot be
// created the operation stays idle and unusable until Reset succeeds.
func (op *AsyncOperation) Reset() error {
	if op.state == StatePending {
		return errors.WithStack(ErrOperationPending)
	}
	op.release()

	*op.overlapped = Overlapped{}
	op.target = InvalidRawHandle
	op.completed = false
	op.errno = 0
	op.length = 0
	op.state = StateIdle

	ev, err := op.sys.CreateEvent()
	if err != nil {
		op.errno = codeOf(err)
		return opError("create event", err)
	}
	op.event = newOSHandle(op.sys, ev)
	op.overlapped.HEvent = ev
	op.state = StateArmed
	return nil
}

// arm resets op and pins everything the engine may write into later.
func (op *AsyncOperation) arm(target RawHandle, buffer []byte, address *Address) error {
	if err := op.Reset(); err != nil {
		return err
	}
	op.pinner.Pin(&buffer[0])
	op.pinner.Pin(address)
	op.pinner.Pin(op.overlapped)
	op.pinned = true
	op.target = target
	return nil
}

// issued records the outcome of the native call and reports whether it
// completed immediately.
func (op *AsyncOperation) issued(n uint, err error) bool {
	op.state = StateIssued
	if err == nil {
		op.length = uint32(n)
		op.completed = true
		op.release()
		op.state = StateCompletedImmediately
		return true
	}

	errno := codeOf(err)
	if errno == ErrnoIOPending {
		op.state = StatePending
		return false
	}
	op.errno = errno
	op.release()
	op.state = StateFailed
	return false
}

// Fetch waits up to timeout for a pending operation. A timeout leaves the
// operation pending with ErrorCode set to ErrnoWaitTimeout; only a fresh
// Fetch may follow. Once the OS reports completion the pins and the event
// are released, on success and on failure alike.
func (op *AsyncOperation) Fetch(timeout time.Duration) bool {
	switch op.state {
	case StateCompletedImmediately, StateCompleted:
		return op.completed
	case StatePending:
	default:
		return false
	}

	signaled, err := op.sys.WaitEvent(op.event.Raw(), timeout)
	if err != nil {
		op.completed = false
		op.errno = codeOf(err)
		return false
	}
	if !signaled {
		op.completed = false
		op.errno = ErrnoWaitTimeout
		return false
	}

	n, err := op.sys.OverlappedResult(op.target, op.overlapped)
	op.release()
	if err != nil {
		op.completed = false
		op.errno = codeOf(err)
		op.state = StateFailed
		return false
	}
	op.completed = true
	op.errno = 0
	op.length = n
	op.state = StateCompleted
	return true
}

// Close releases an operation that is not pending.
func (op *AsyncOperation) Close() error {
	if op.state == StatePending {
		return errors.WithStack(ErrOperationPending)
	}
	op.release()
	op.state = StateIdle
	return nil
}

func (op *AsyncOperation) release() {
	if op.pinned {
		op.pinner.Unpin()
		op.pinned = false
	}
	if op.event != nil {
		if err := op.event.Close(); err != nil {
			logger.WithFields(logrus.Fields{"state": op.state, "error": err}).Debug("divert: close completion event")
		}
		op.event = nil
		op.overlapped.HEvent = InvalidRawHandle
	}
}

// NoError reports whether the operation completed successfully.
func (op *AsyncOperation) NoError() bool { return op.completed }

// ErrorCode is the native code of the last failure, or 0.
func (op *AsyncOperation) ErrorCode() syscall.Errno { return op.errno }

// Err wraps ErrorCode as an error.
func (op *AsyncOperation) Err() error {
	if op.errno == 0 {
		return nil
	}
	return &OpError{Op: "overlapped " + op.state.String(), Errno: op.errno}
}

// Length is the number of bytes transferred.
func (op *AsyncOperation) Length() uint32 { return op.length }

func (op *AsyncOperation) State() OpState { return op.state }

// Pinned reports whether the operation still holds its buffer pins.
func (op *AsyncOperation) Pinned() bool { return op.pinned }
