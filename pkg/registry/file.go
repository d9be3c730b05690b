package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/session"
	"github.com/devhost-project/devhost-go/pkg/trace"
	"github.com/google/uuid"
)

// Lookup resolves a node path to a device reference without opening it.
// Fails with ENODEV if no node is published at path.
func (r *Registry) Lookup(path string) (fileops.DeviceRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[path]
	if !ok {
		return fileops.DeviceRef{}, fmt.Errorf("lookup %s: %w", path, fileops.ENODEV)
	}
	return fileops.DeviceRef{Num: n.num, Path: n.path}, nil
}

// Open opens the node at path the way user space opens a device file:
// the path resolves to a device number, the number resolves to the
// bound driver, and the driver's Open creates the per-open session.
// Fails with ENODEV if no node is published at path, ENXIO if the
// node's device number has no bound driver.
func (r *Registry) Open(ctx context.Context, path string) (*File, error) {
	r.mu.RLock()
	n, ok := r.nodes[path]
	var ops fileops.FileOperations
	device := ""
	if ok {
		if b, bound := r.bindings[n.num.Major()]; bound {
			ops = b.ops
			device = b.region.Name
		}
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fileops.ENODEV)
	}
	if ops == nil {
		return nil, fmt.Errorf("open %s: %w", path, fileops.ENXIO)
	}

	ref := fileops.DeviceRef{Num: n.num, Path: n.path}
	start := time.Now()
	h, err := ops.Open(ctx, ref)
	elapsed := time.Since(start)

	if err != nil {
		r.emitDispatch(device, path, "", trace.DispatchEvent{
			Op:       fileops.OpOpen,
			Errno:    fileops.ErrnoOf(err).Errno(),
			Duration: &elapsed,
		})
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	f := &File{
		reg:     r,
		ref:     ref,
		ops:     ops,
		handle:  h,
		device:  device,
		traceID: uuid.New().String(),
	}

	r.mu.Lock()
	r.openFiles++
	r.totalOpens++
	r.mu.Unlock()

	r.emitDispatch(device, path, f.traceID, trace.DispatchEvent{
		Op:       fileops.OpOpen,
		Duration: &elapsed,
	})
	return f, nil
}

// File is one user-space open of a device node. Operations on a File
// happen in program order; once Close returns, every further operation
// fails with EBADF. A File stays usable after its node is removed or
// its driver unbound, exactly until Close.
type File struct {
	mu      sync.Mutex
	reg     *Registry
	ref     fileops.DeviceRef
	ops     fileops.FileOperations
	handle  session.Handle
	device  string
	traceID string
	closed  bool
}

// Ref returns the device reference the file was opened against.
func (f *File) Ref() fileops.DeviceRef {
	return f.ref
}

// TraceID returns the identifier correlating this file's trace events.
func (f *File) TraceID() string {
	return f.traceID
}

// Read reads up to len(p) bytes from the device at off.
// A zero count with a nil error means end of data.
func (f *File) Read(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fileops.EBADF
	}

	start := time.Now()
	n, err := f.ops.Read(ctx, f.handle, p, off)
	elapsed := time.Since(start)

	f.reg.emitDispatch(f.device, f.ref.Path, f.traceID, trace.DispatchEvent{
		Op:       fileops.OpRead,
		Bytes:    n,
		Errno:    fileops.ErrnoOf(err).Errno(),
		Duration: &elapsed,
		Offset:   &off,
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", f.ref.Path, err)
	}
	return n, nil
}

// Write writes up to len(p) bytes to the device at off.
func (f *File) Write(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fileops.EBADF
	}

	start := time.Now()
	n, err := f.ops.Write(ctx, f.handle, p, off)
	elapsed := time.Since(start)

	f.reg.emitDispatch(f.device, f.ref.Path, f.traceID, trace.DispatchEvent{
		Op:       fileops.OpWrite,
		Bytes:    n,
		Errno:    fileops.ErrnoOf(err).Errno(),
		Duration: &elapsed,
		Offset:   &off,
	})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", f.ref.Path, err)
	}
	return n, nil
}

// Ioctl issues a device control operation.
func (f *File) Ioctl(ctx context.Context, cmd uint32, arg uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fileops.EBADF
	}

	start := time.Now()
	err := f.ops.Ioctl(ctx, f.handle, cmd, arg)
	elapsed := time.Since(start)

	f.reg.emitDispatch(f.device, f.ref.Path, f.traceID, trace.DispatchEvent{
		Op:       fileops.OpIoctl,
		Errno:    fileops.ErrnoOf(err).Errno(),
		Duration: &elapsed,
		Cmd:      &cmd,
	})
	if err != nil {
		return fmt.Errorf("ioctl %s: %w", f.ref.Path, err)
	}
	return nil
}

// Close releases the file's session. The first Close wins; any later
// call fails with EBADF.
func (f *File) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fileops.EBADF
	}
	f.closed = true

	start := time.Now()
	err := f.ops.Release(ctx, f.handle)
	elapsed := time.Since(start)

	f.reg.emitDispatch(f.device, f.ref.Path, f.traceID, trace.DispatchEvent{
		Op:       fileops.OpRelease,
		Errno:    fileops.ErrnoOf(err).Errno(),
		Duration: &elapsed,
	})

	f.reg.mu.Lock()
	f.reg.openFiles--
	f.reg.mu.Unlock()

	if err != nil {
		return fmt.Errorf("close %s: %w", f.ref.Path, err)
	}
	return nil
}
