package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/session"
)

// register wires one device end to end and returns its node path.
func register(t *testing.T, r *Registry, ops fileops.FileOperations) string {
	t.Helper()

	region, err := r.AllocateRegion("modbus_dev", 0, 1)
	if err != nil {
		t.Fatalf("AllocateRegion failed: %v", err)
	}
	if _, err := r.BindDevice(region, ops); err != nil {
		t.Fatalf("BindDevice failed: %v", err)
	}
	c, err := r.CreateClass("modbus_class")
	if err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	if _, err := r.CreateNode(c, "modbus_dev0", region.First()); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	return "modbus_class/modbus_dev0"
}

func TestOpenMissingNode(t *testing.T) {
	r := New()

	_, err := r.Open(context.Background(), "modbus_class/modbus_dev0")
	if !errors.Is(err, fileops.ENODEV) {
		t.Errorf("expected ENODEV, got %v", err)
	}
}

func TestOpenUnboundNode(t *testing.T) {
	r := New()

	// Node published for a region nobody bound dispatch for.
	region, err := r.AllocateRegion("modbus_dev", 0, 1)
	if err != nil {
		t.Fatalf("AllocateRegion failed: %v", err)
	}
	c, err := r.CreateClass("modbus_class")
	if err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	if _, err := r.CreateNode(c, "modbus_dev0", region.First()); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	_, err = r.Open(context.Background(), "modbus_class/modbus_dev0")
	if !errors.Is(err, fileops.ENXIO) {
		t.Errorf("expected ENXIO, got %v", err)
	}
}

func TestOpenDispatchClose(t *testing.T) {
	r := New()
	ops := newStubOps()
	ops.readData = []byte("register bank")
	path := register(t, r, ops)

	ctx := context.Background()
	f, err := r.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if ops.sessions.Live() != 1 {
		t.Errorf("expected 1 live session after open, got %d", ops.sessions.Live())
	}

	buf := make([]byte, 8)
	n, err := f.Read(ctx, buf, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 8 || string(buf[:n]) != "register" {
		t.Errorf("Read = %d %q, want 8 \"register\"", n, buf[:n])
	}

	n, err = f.Read(ctx, buf, 1000)
	if err != nil {
		t.Fatalf("Read past end failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Read past end = %d, want 0", n)
	}

	n, err = f.Write(ctx, []byte("abc"), 0)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Write = %d, want 3", n)
	}

	if err := f.Ioctl(ctx, 0x5401, 42); err != nil {
		t.Fatalf("Ioctl failed: %v", err)
	}

	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ops.sessions.Live() != 0 {
		t.Errorf("expected 0 live sessions after close, got %d", ops.sessions.Live())
	}
}

func TestFileAfterClose(t *testing.T) {
	r := New()
	path := register(t, r, newStubOps())

	ctx := context.Background()
	f, err := r.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := f.Read(ctx, make([]byte, 4), 0); !errors.Is(err, fileops.EBADF) {
		t.Errorf("Read after close: expected EBADF, got %v", err)
	}
	if _, err := f.Write(ctx, []byte("x"), 0); !errors.Is(err, fileops.EBADF) {
		t.Errorf("Write after close: expected EBADF, got %v", err)
	}
	if err := f.Ioctl(ctx, 1, 0); !errors.Is(err, fileops.EBADF) {
		t.Errorf("Ioctl after close: expected EBADF, got %v", err)
	}
	if err := f.Close(ctx); !errors.Is(err, fileops.EBADF) {
		t.Errorf("second Close: expected EBADF, got %v", err)
	}
}

func TestOpenFailurePropagates(t *testing.T) {
	r := New()
	ops := newStubOps()
	ops.failOpen = session.ErrNoMemory
	path := register(t, r, ops)

	_, err := r.Open(context.Background(), path)
	if !errors.Is(err, session.ErrNoMemory) {
		t.Fatalf("expected ErrNoMemory, got %v", err)
	}
	if fileops.ErrnoOf(err) != fileops.ENOMEM {
		t.Errorf("errno = %v, want ENOMEM", fileops.ErrnoOf(err))
	}
	if r.OpenFiles() != 0 {
		t.Errorf("failed open leaked a file: OpenFiles = %d", r.OpenFiles())
	}
}

func TestOpenFileAccounting(t *testing.T) {
	r := New()
	path := register(t, r, newStubOps())

	ctx := context.Background()
	f1, err := r.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f2, err := r.Open(ctx, path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}

	if r.OpenFiles() != 2 {
		t.Errorf("OpenFiles = %d, want 2", r.OpenFiles())
	}
	if r.TotalOpens() != 2 {
		t.Errorf("TotalOpens = %d, want 2", r.TotalOpens())
	}

	if err := f1.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f2.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if r.OpenFiles() != 0 {
		t.Errorf("OpenFiles after closes = %d, want 0", r.OpenFiles())
	}
	if r.TotalOpens() != 2 {
		t.Errorf("TotalOpens after closes = %d, want 2", r.TotalOpens())
	}
}

func TestFileUsableAfterNodeRemoved(t *testing.T) {
	r := New()
	ops := newStubOps()

	region, err := r.AllocateRegion("modbus_dev", 0, 1)
	if err != nil {
		t.Fatalf("AllocateRegion failed: %v", err)
	}
	b, err := r.BindDevice(region, ops)
	if err != nil {
		t.Fatalf("BindDevice failed: %v", err)
	}
	c, err := r.CreateClass("modbus_class")
	if err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	n, err := r.CreateNode(c, "modbus_dev0", region.First())
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	ctx := context.Background()
	f, err := r.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Tear the device down under the open file.
	r.RemoveNode(n)
	r.DestroyClass(c)
	r.UnbindDevice(b)
	r.ReleaseRegion(region)

	// New opens fail, but the held file keeps working until closed.
	if _, err := r.Open(ctx, "modbus_class/modbus_dev0"); !errors.Is(err, fileops.ENODEV) {
		t.Errorf("expected ENODEV for new open, got %v", err)
	}
	if _, err := f.Read(ctx, make([]byte, 4), 0); err != nil {
		t.Errorf("Read on held file failed: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Errorf("Close on held file failed: %v", err)
	}
	if ops.sessions.Live() != 0 {
		t.Errorf("session leaked after close: %d live", ops.sessions.Live())
	}
}

func TestDispatchTraceCorrelation(t *testing.T) {
	r := New()
	tracer := &captureTracer{}
	r.SetTraceLogger(tracer)
	path := register(t, r, newStubOps())

	ctx := context.Background()
	f, err := r.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Read(ctx, make([]byte, 4), 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var ops []fileops.Op
	var sids []string
	for _, e := range tracer.all() {
		if e.Dispatch == nil {
			continue
		}
		ops = append(ops, e.Dispatch.Op)
		sids = append(sids, e.SessionID)
		if e.Node != path {
			t.Errorf("dispatch event node = %q, want %q", e.Node, path)
		}
		if e.Device != "modbus_dev" {
			t.Errorf("dispatch event device = %q, want modbus_dev", e.Device)
		}
	}

	want := []fileops.Op{fileops.OpOpen, fileops.OpRead, fileops.OpRelease}
	if len(ops) != len(want) {
		t.Fatalf("expected %d dispatch events, got %d", len(want), len(ops))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("event %d: op %v, want %v", i, ops[i], want[i])
		}
	}
	for i := 1; i < len(sids); i++ {
		if sids[i] != sids[0] {
			t.Errorf("session trace IDs differ across one file: %q vs %q", sids[i], sids[0])
		}
	}
	if sids[0] != f.TraceID() {
		t.Errorf("trace ID mismatch: event %q, file %q", sids[0], f.TraceID())
	}
}

func TestConcurrentFilesIndependent(t *testing.T) {
	r := New()
	ops := newStubOps()
	ops.readData = []byte("shared device data")
	path := register(t, r, ops)

	ctx := context.Background()
	const workers = 8
	const iterations = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := r.Open(ctx, path)
			if err != nil {
				errs <- err
				return
			}
			buf := make([]byte, 6)
			for i := 0; i < iterations; i++ {
				if _, err := f.Read(ctx, buf, 0); err != nil {
					errs <- err
					return
				}
				if _, err := f.Write(ctx, buf, 0); err != nil {
					errs <- err
					return
				}
			}
			errs <- f.Close(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("worker error: %v", err)
		}
	}
	if r.OpenFiles() != 0 {
		t.Errorf("OpenFiles = %d after all closes, want 0", r.OpenFiles())
	}
	if ops.sessions.Live() != 0 {
		t.Errorf("live sessions = %d, want 0", ops.sessions.Live())
	}
}
