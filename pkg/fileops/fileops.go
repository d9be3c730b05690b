package fileops

import (
	"context"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/session"
)

// DeviceRef identifies the node an open call is aimed at. It carries the
// packed device identity and the node path, so a driver serving several
// minors can tell them apart.
type DeviceRef struct {
	// Num is the node's device identity.
	Num devnum.DevNum

	// Path is the node's path in the device tree.
	Path string
}

// FileOperations is the callback table a driver registers for its
// device region. The host routes every operation on a bound node
// through exactly these five entry points.
//
// Open creates the per-open session and returns its handle; every other
// operation requires the handle of a live session and must fail with
// session.ErrNoSession otherwise. A missing session is an invalid
// state, never silently ignored. The host guarantees that, per open
// instance, Open strictly precedes all other operations and Release
// strictly follows them; it does not serialize operations across open
// instances.
//
// No operation in the placeholder driver blocks. The context is part of
// the contract for protocol layers that will: a real transport must
// honor cancellation on every entry point.
type FileOperations interface {
	// Open allocates a new session for one open instance of ref.
	Open(ctx context.Context, ref DeviceRef) (session.Handle, error)

	// Release destroys the session; called exactly once per Open.
	Release(ctx context.Context, h session.Handle) error

	// Ioctl performs a device-specific control operation.
	Ioctl(ctx context.Context, h session.Handle, cmd uint32, arg uint64) error

	// Read transfers up to len(p) bytes from the device at off,
	// returning the number of bytes read. Zero means end of data.
	Read(ctx context.Context, h session.Handle, p []byte, off int64) (int, error)

	// Write transfers up to len(p) bytes to the device at off,
	// returning the number of bytes written.
	Write(ctx context.Context, h session.Handle, p []byte, off int64) (int, error)
}

// Op identifies one of the five dispatch operations, for trace events
// and diagnostics.
type Op uint8

const (
	// OpOpen is the open entry point.
	OpOpen Op = 1

	// OpRelease is the close entry point.
	OpRelease Op = 2

	// OpIoctl is the device control entry point.
	OpIoctl Op = 3

	// OpRead is the read entry point.
	OpRead Op = 4

	// OpWrite is the write entry point.
	OpWrite Op = 5
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpOpen:
		return "OPEN"
	case OpRelease:
		return "RELEASE"
	case OpIoctl:
		return "IOCTL"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether o is one of the five dispatch operations.
func (o Op) IsValid() bool {
	return o >= OpOpen && o <= OpWrite
}
