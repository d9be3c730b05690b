package fileops

import (
	"errors"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/session"
)

// Errno is a POSIX-style error category. User-space system calls receive
// the negated value; inside the host, errors stay typed Go errors and
// collapse to an Errno only at the boundary.
type Errno int

const (
	// OK means success.
	OK Errno = 0

	// ENOMEM - allocation failed (session store at capacity).
	ENOMEM Errno = 12

	// EINVAL - invalid argument.
	EINVAL Errno = 22

	// EBADF - operation on a file handle with no live session.
	EBADF Errno = 9

	// ENODEV - no such device node.
	ENODEV Errno = 19

	// ENXIO - node exists but no driver is bound to its identity.
	ENXIO Errno = 6

	// ENOTTY - inappropriate ioctl for the device.
	ENOTTY Errno = 25

	// EBUSY - resource busy (identity space exhausted, duplicate names).
	EBUSY Errno = 16

	// EIO - catch-all input/output error.
	EIO Errno = 5
)

// String returns the conventional errno name.
func (e Errno) String() string {
	switch e {
	case OK:
		return "OK"
	case ENOMEM:
		return "ENOMEM"
	case EINVAL:
		return "EINVAL"
	case EBADF:
		return "EBADF"
	case ENODEV:
		return "ENODEV"
	case ENXIO:
		return "ENXIO"
	case ENOTTY:
		return "ENOTTY"
	case EBUSY:
		return "EBUSY"
	case EIO:
		return "EIO"
	default:
		return "EUNKNOWN"
	}
}

// Error makes Errno usable as an error value.
func (e Errno) Error() string {
	return e.String()
}

// Errno returns the POSIX return value for this category: 0 for OK,
// negative otherwise.
func (e Errno) Errno() int {
	if e == OK {
		return 0
	}
	return -int(e)
}

// ErrnoOf maps an error to its errno category. A nil error maps to OK;
// an error with no specific category maps to EIO.
func ErrnoOf(err error) Errno {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, session.ErrNoMemory):
		return ENOMEM
	case errors.Is(err, session.ErrNoSession):
		return EBADF
	case errors.Is(err, devnum.ErrExhausted):
		return EBUSY
	case errors.Is(err, devnum.ErrBadRange):
		return EINVAL
	}

	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return EIO
}
