package divert

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

var (
	ErrEmptyFilter      = errors.New("divert: empty filter")
	ErrEmptyBuffer      = errors.New("divert: empty buffer")
	ErrNilAddress       = errors.New("divert: nil address")
	ErrInvalidHandle    = errors.New("divert: invalid handle")
	ErrHandleClosed     = errors.New("divert: handle already closed")
	ErrOperationPending = errors.New("divert: operation still pending")
	ErrUnsupported      = errors.New("divert: not supported on this platform")

	ErrPriority    = errors.New("divert: priority out of range")
	ErrQueueLength = errors.New("divert: queue length out of range")
	ErrQueueTime   = errors.New("divert: queue time out of range")
	ErrQueueSize   = errors.New("divert: queue size out of range")
	ErrParam       = errors.New("divert: parameter is not settable")
)

// Native error codes the package interprets.
const (
	ErrnoFileNotFound       syscall.Errno = 2
	ErrnoAccessDenied       syscall.Errno = 5
	ErrnoGenFailure         syscall.Errno = 31
	ErrnoInvalidParameter   syscall.Errno = 87
	ErrnoInsufficientBuffer syscall.Errno = 122
	ErrnoNoData             syscall.Errno = 232
	ErrnoWaitTimeout        syscall.Errno = 258
	ErrnoInvalidImageHash   syscall.Errno = 577
	ErrnoOperationAborted   syscall.Errno = 995
	ErrnoIOPending          syscall.Errno = 997
	ErrnoDriverBlocked      syscall.Errno = 1275
)

// Reason classifies why a session could not be opened.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonFileNotFound
	ReasonAccessDenied
	ReasonInvalidParameter
	ReasonInvalidSignature
	ReasonDriverBlocked
)

func (r Reason) String() string {
	switch r {
	case ReasonFileNotFound:
		return "driver files not found"
	case ReasonAccessDenied:
		return "access denied"
	case ReasonInvalidParameter:
		return "invalid parameter"
	case ReasonInvalidSignature:
		return "invalid driver signature"
	case ReasonDriverBlocked:
		return "driver blocked"
	default:
		return "unknown error"
	}
}

func reasonOf(errno syscall.Errno) Reason {
	switch errno {
	case ErrnoFileNotFound:
		return ReasonFileNotFound
	case ErrnoAccessDenied:
		return ReasonAccessDenied
	case ErrnoInvalidParameter:
		return ReasonInvalidParameter
	case ErrnoInvalidImageHash:
		return ReasonInvalidSignature
	case ErrnoDriverBlocked:
		return ReasonDriverBlocked
	default:
		return ReasonUnknown
	}
}

// OpenError is returned when the engine refuses to open a session.
type OpenError struct {
	Filter string
	Reason Reason
	Errno  syscall.Errno
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("divert: open %q: %v (errno %d)", e.Filter, e.Reason, uint32(e.Errno))
}

func (e *OpenError) Unwrap() error { return e.Errno }

// OpError is an engine failure on an open session.
type OpError struct {
	Op    string
	Errno syscall.Errno
}

func (e *OpError) Error() string {
	return fmt.Sprintf("divert: %s: %v (errno %d)", e.Op, e.Errno, uint32(e.Errno))
}

func (e *OpError) Unwrap() error { return e.Errno }

// errnoOf extracts the native code carried by err.
func errnoOf(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// codeOf is the code an operation record keeps for err. Failures that
// carry no native code are recorded as ErrnoGenFailure.
func codeOf(err error) syscall.Errno {
	if errno, ok := errnoOf(err); ok && errno != 0 {
		return errno
	}
	return ErrnoGenFailure
}

func opError(op string, err error) error {
	if errno, ok := errnoOf(err); ok {
		return &OpError{Op: op, Errno: errno}
	}
	return errors.Wrap(err, "divert: "+op)
}
