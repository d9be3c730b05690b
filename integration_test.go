package devhost_test

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devhost-project/devhost-go/pkg/driver"
	"github.com/devhost-project/devhost-go/pkg/export"
	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/modbus"
	"github.com/devhost-project/devhost-go/pkg/persistence"
	"github.com/devhost-project/devhost-go/pkg/registry"
	"github.com/devhost-project/devhost-go/pkg/session"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

// newDriver wires a registry, modbus handler and driver the way devhostd
// does.
func newDriver(t *testing.T, reg *registry.Registry, cfg driver.Config) (*driver.Driver, *modbus.Handler) {
	t.Helper()

	handler := modbus.NewHandler(0)
	drv, err := driver.New(reg, handler, cfg)
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	return drv, handler
}

func defaultConfig() driver.Config {
	return driver.Config{
		DeviceName: modbus.DeviceName,
		ClassName:  modbus.ClassName,
		FirstMinor: 0,
		MinorCount: 1,
	}
}

// TestE2E_DriverLifecycle registers a driver with several minors and
// checks the published namespace, then unregisters and checks teardown.
func TestE2E_DriverLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	cfg := defaultConfig()
	cfg.MinorCount = 3
	drv, _ := newDriver(t, reg, cfg)

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}

	if drv.State() != driver.StateRegistered {
		t.Errorf("State mismatch: expected REGISTERED, got %s", drv.State())
	}

	// One node per minor, visible in the namespace
	wantNodes := []string{
		"modbus_class/modbus_dev0",
		"modbus_class/modbus_dev1",
		"modbus_class/modbus_dev2",
	}
	major := drv.Region().First().Major()
	for i, path := range wantNodes {
		ref, err := reg.Lookup(path)
		if err != nil {
			t.Fatalf("Failed to look up %s: %v", path, err)
		}
		if ref.Num.Major() != major {
			t.Errorf("Major mismatch for %s: expected %d, got %d", path, major, ref.Num.Major())
		}
		if ref.Num.Minor() != uint32(i) {
			t.Errorf("Minor mismatch for %s: expected %d, got %d", path, i, ref.Num.Minor())
		}
	}

	if err := drv.Unregister(); err != nil {
		t.Fatalf("Failed to unregister driver: %v", err)
	}

	if drv.State() != driver.StateUnregistered {
		t.Errorf("State mismatch: expected UNREGISTERED, got %s", drv.State())
	}
	for _, path := range wantNodes {
		if _, err := reg.Lookup(path); fileops.ErrnoOf(err) != fileops.ENODEV {
			t.Errorf("Expected ENODEV for removed node %s, got %v", path, err)
		}
	}
	if got := reg.NodeCount(); got != 0 {
		t.Errorf("Node count after unregister: expected 0, got %d", got)
	}
}

// TestE2E_FileOperations drives the five dispatch operations through an
// open file and verifies session accounting.
func TestE2E_FileOperations(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	drv, handler := newDriver(t, reg, defaultConfig())

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}
	defer drv.Unregister()

	file, err := reg.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Failed to open node: %v", err)
	}

	if got := handler.Sessions().Live(); got != 1 {
		t.Errorf("Live sessions after open: expected 1, got %d", got)
	}

	// Ioctl: the placeholder handler acknowledges every command
	if err := file.Ioctl(ctx, 0x5401, 42); err != nil {
		t.Errorf("Ioctl failed: %v", err)
	}

	// Read: no data behind the placeholder yet
	buf := make([]byte, 64)
	n, err := file.Read(ctx, buf, 0)
	if err != nil {
		t.Errorf("Read failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Read returned %d bytes, expected 0 (end of data)", n)
	}

	// Write: the placeholder accepts nothing
	n, err = file.Write(ctx, []byte("register update"), 0)
	if err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Write accepted %d bytes, expected 0", n)
	}

	if err := file.Close(ctx); err != nil {
		t.Fatalf("Failed to close file: %v", err)
	}
	if got := handler.Sessions().Live(); got != 0 {
		t.Errorf("Live sessions after close: expected 0, got %d", got)
	}

	// The handle is dead after close
	if err := file.Ioctl(ctx, 1, 0); fileops.ErrnoOf(err) != fileops.EBADF {
		t.Errorf("Expected EBADF on closed file, got %v", err)
	}
}

// TestE2E_DuplicateDriver checks that a second driver with the same
// class fails registration cleanly while the first keeps running, and
// succeeds once the first is gone.
func TestE2E_DuplicateDriver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	first, _ := newDriver(t, reg, defaultConfig())
	second, _ := newDriver(t, reg, defaultConfig())

	if err := first.Register(ctx); err != nil {
		t.Fatalf("Failed to register first driver: %v", err)
	}

	err := second.Register(ctx)
	if !errors.Is(err, driver.ErrRegistration) {
		t.Fatalf("Expected registration error for duplicate driver, got %v", err)
	}
	if second.State() != driver.StateFailed {
		t.Errorf("Second driver state: expected FAILED, got %s", second.State())
	}

	// First driver is untouched
	if first.State() != driver.StateRegistered {
		t.Errorf("First driver state: expected REGISTERED, got %s", first.State())
	}
	if _, err := reg.Lookup("modbus_class/modbus_dev0"); err != nil {
		t.Errorf("First driver's node vanished: %v", err)
	}

	// After the first unregisters, the second can claim the name
	if err := first.Unregister(); err != nil {
		t.Fatalf("Failed to unregister first driver: %v", err)
	}
	if err := second.Register(ctx); err != nil {
		t.Fatalf("Second driver failed to register after retry: %v", err)
	}
	defer second.Unregister()

	if _, err := reg.Lookup("modbus_class/modbus_dev0"); err != nil {
		t.Errorf("Second driver's node missing: %v", err)
	}
}

// TestE2E_RepeatedCycles runs many register/unregister cycles and checks
// that the identity pool is not exhausted and the major stays stable.
func TestE2E_RepeatedCycles(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := registry.New()
	drv, _ := newDriver(t, reg, defaultConfig())

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed initial registration: %v", err)
	}
	major := drv.Region().First().Major()
	if err := drv.Unregister(); err != nil {
		t.Fatalf("Failed initial unregister: %v", err)
	}

	for i := 0; i < 50; i++ {
		if err := drv.Register(ctx); err != nil {
			t.Fatalf("Cycle %d: register failed: %v", i, err)
		}
		if got := drv.Region().First().Major(); got != major {
			t.Fatalf("Cycle %d: major changed: expected %d, got %d", i, major, got)
		}
		if err := drv.Unregister(); err != nil {
			t.Fatalf("Cycle %d: unregister failed: %v", i, err)
		}
	}

	if got := reg.NodeCount(); got != 0 {
		t.Errorf("Node count after cycles: expected 0, got %d", got)
	}
}

// TestE2E_ConcurrentSessions opens many files at once and checks that
// sessions stay independent.
func TestE2E_ConcurrentSessions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	drv, handler := newDriver(t, reg, defaultConfig())

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}
	defer drv.Unregister()

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			file, err := reg.Open(ctx, "modbus_class/modbus_dev0")
			if err != nil {
				errCh <- err
				return
			}
			if err := file.Ioctl(ctx, 1, 0); err != nil {
				errCh <- err
				return
			}
			buf := make([]byte, 8)
			if _, err := file.Read(ctx, buf, 0); err != nil {
				errCh <- err
				return
			}
			errCh <- file.Close(ctx)
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Errorf("Worker failed: %v", err)
		}
	}

	if got := handler.Sessions().Live(); got != 0 {
		t.Errorf("Live sessions after all closed: expected 0, got %d", got)
	}
	if got := reg.TotalOpens(); got != workers {
		t.Errorf("Total opens: expected %d, got %d", workers, got)
	}
}

// TestE2E_SocketExport registers a driver, exports its node as a unix
// socket and talks to the device through it.
func TestE2E_SocketExport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	drv, handler := newDriver(t, reg, defaultConfig())

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}
	defer drv.Unregister()

	exporter, err := export.New(reg, export.Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}
	if err := exporter.Start(ctx); err != nil {
		t.Fatalf("Failed to start exporter: %v", err)
	}
	defer exporter.Stop()

	sock := exporter.SocketPath("modbus_class/modbus_dev0")
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", sock, err)
	}
	defer conn.Close()

	// The placeholder device has no data: the exporter half-closes at
	// once and the peer sees EOF.
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("Failed to read from socket: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no device data, got %q", data)
	}

	// The write direction still works
	if _, err := conn.Write([]byte("coil 7 on")); err != nil {
		t.Fatalf("Failed to write to socket: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if handler.Sessions().Live() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := handler.Sessions().Live(); got != 0 {
		t.Errorf("Live sessions after disconnect: expected 0, got %d", got)
	}

	if err := exporter.Stop(); err != nil {
		t.Fatalf("Failed to stop exporter: %v", err)
	}
}

// TestE2E_TraceCapture runs a full lifecycle with a file tracer attached
// and verifies the recorded event stream.
func TestE2E_TraceCapture(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracePath := filepath.Join(t.TempDir(), "e2e.dtrace")
	tracer, err := trace.NewFileLogger(tracePath)
	if err != nil {
		t.Fatalf("Failed to create trace logger: %v", err)
	}

	reg := registry.New()
	reg.SetTraceLogger(tracer)

	cfg := defaultConfig()
	cfg.TraceLogger = tracer
	drv, _ := newDriver(t, reg, cfg)

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}

	file, err := reg.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Failed to open node: %v", err)
	}
	sessionID := file.TraceID()

	if err := file.Ioctl(ctx, 0x10, 0); err != nil {
		t.Fatalf("Ioctl failed: %v", err)
	}
	if err := file.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := drv.Unregister(); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	tracer.Close()

	// Read the stream back
	reader, err := trace.NewReader(tracePath)
	if err != nil {
		t.Fatalf("Failed to open trace file: %v", err)
	}
	defer reader.Close()

	var driverStates []string
	var nodeStates []string
	var sessionOps []fileops.Op
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read trace event: %v", err)
		}

		switch {
		case event.StateChange != nil && event.StateChange.Entity == trace.StateEntityDriver:
			driverStates = append(driverStates, event.StateChange.NewState)
		case event.StateChange != nil && event.StateChange.Entity == trace.StateEntityNode:
			nodeStates = append(nodeStates, event.StateChange.NewState)
		case event.Dispatch != nil && event.SessionID == sessionID:
			sessionOps = append(sessionOps, event.Dispatch.Op)
		}
	}

	wantDriver := []string{
		"IDENTITY_ALLOCATED", "DISPATCH_BOUND", "CLASS_CREATED", "REGISTERED", "UNREGISTERED",
	}
	if len(driverStates) != len(wantDriver) {
		t.Fatalf("Driver state events: expected %v, got %v", wantDriver, driverStates)
	}
	for i, want := range wantDriver {
		if driverStates[i] != want {
			t.Errorf("Driver state %d: expected %s, got %s", i, want, driverStates[i])
		}
	}

	wantNode := []string{"PUBLISHED", "REMOVED"}
	if len(nodeStates) != 2 || nodeStates[0] != wantNode[0] || nodeStates[1] != wantNode[1] {
		t.Errorf("Node state events: expected %v, got %v", wantNode, nodeStates)
	}

	wantOps := []fileops.Op{fileops.OpOpen, fileops.OpIoctl, fileops.OpRelease}
	if len(sessionOps) != len(wantOps) {
		t.Fatalf("Session ops: expected %v, got %v", wantOps, sessionOps)
	}
	for i, want := range wantOps {
		if sessionOps[i] != want {
			t.Errorf("Session op %d: expected %s, got %s", i, want, sessionOps[i])
		}
	}
}

// TestE2E_StatePersistence checks that a device keeps its major across a
// simulated daemon restart.
func TestE2E_StatePersistence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	statePath := filepath.Join(t.TempDir(), "state.json")
	store := persistence.NewHostStateStore(statePath)

	// First daemon run
	reg1 := registry.New()
	reg1.SetStateStore(store)
	drv1, _ := newDriver(t, reg1, defaultConfig())

	if err := drv1.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}
	major := drv1.Region().First().Major()

	if err := reg1.SaveState(); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}
	if err := drv1.Unregister(); err != nil {
		t.Fatalf("Failed to unregister: %v", err)
	}

	// Second daemon run restores the saved identity
	reg2 := registry.New()
	reg2.SetStateStore(store)
	if err := reg2.LoadState(); err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}

	drv2, _ := newDriver(t, reg2, defaultConfig())
	if err := drv2.Register(ctx); err != nil {
		t.Fatalf("Failed to register after restart: %v", err)
	}
	defer drv2.Unregister()

	if got := drv2.Region().First().Major(); got != major {
		t.Errorf("Major not stable across restart: expected %d, got %d", major, got)
	}
}

// TestE2E_SessionCapacity exhausts a bounded session store through the
// full stack and checks the errno surfaced to the boundary.
func TestE2E_SessionCapacity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()
	handler := modbus.NewHandler(2)
	drv, err := driver.New(reg, handler, defaultConfig())
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	if err := drv.Register(ctx); err != nil {
		t.Fatalf("Failed to register driver: %v", err)
	}
	defer drv.Unregister()

	first, err := reg.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Failed to open first file: %v", err)
	}
	defer first.Close(ctx)

	second, err := reg.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Failed to open second file: %v", err)
	}

	// Store is full: the third open fails like an allocation failure
	_, err = reg.Open(ctx, "modbus_class/modbus_dev0")
	if !errors.Is(err, session.ErrNoMemory) {
		t.Errorf("Expected ErrNoMemory at capacity, got %v", err)
	}
	if fileops.ErrnoOf(err) != fileops.ENOMEM {
		t.Errorf("Expected ENOMEM at capacity, got %v", fileops.ErrnoOf(err))
	}

	// Releasing a session frees a slot
	if err := second.Close(ctx); err != nil {
		t.Fatalf("Failed to close second file: %v", err)
	}
	third, err := reg.Open(ctx, "modbus_class/modbus_dev0")
	if err != nil {
		t.Fatalf("Failed to open after release: %v", err)
	}
	third.Close(ctx)
}

// TestE2E_MinorRanges registers two drivers for different devices and
// checks that their identity regions do not collide.
func TestE2E_MinorRanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New()

	modbusDrv, _ := newDriver(t, reg, defaultConfig())
	sensorDrv, _ := newDriver(t, reg, driver.Config{
		DeviceName: "sensor_dev",
		ClassName:  "sensor_class",
		FirstMinor: 0,
		MinorCount: 2,
	})

	if err := modbusDrv.Register(ctx); err != nil {
		t.Fatalf("Failed to register modbus driver: %v", err)
	}
	defer modbusDrv.Unregister()
	if err := sensorDrv.Register(ctx); err != nil {
		t.Fatalf("Failed to register sensor driver: %v", err)
	}
	defer sensorDrv.Unregister()

	if modbusDrv.Region().First().Major() == sensorDrv.Region().First().Major() {
		t.Errorf("Drivers share a major: %s vs %s", modbusDrv.Region(), sensorDrv.Region())
	}

	for _, path := range []string{
		"modbus_class/modbus_dev0",
		"sensor_class/sensor_dev0",
		"sensor_class/sensor_dev1",
	} {
		if _, err := reg.Lookup(path); err != nil {
			t.Errorf("Node %s not reachable: %v", path, err)
		}
	}

	if got := reg.NodeCount(); got != 3 {
		t.Errorf("Node count: expected 3, got %d", got)
	}
}
