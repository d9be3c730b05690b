package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/host"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

// Driver owns one device's registration against a host.
type Driver struct {
	mu sync.Mutex

	config Config
	host   host.Host
	ops    fileops.FileOperations
	state  State

	// Held host resources; all zero/nil unless state is Registered
	// (or mid-transition under mu).
	region  devnum.Region
	binding host.Binding
	class   host.Class
	nodes   []host.Node

	tracer trace.Logger
}

// New creates a driver for the given host and file operations.
func New(h host.Host, ops fileops.FileOperations, config Config) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil host", ErrInvalidConfig)
	}
	if ops == nil {
		return nil, fmt.Errorf("%w: nil file operations", ErrInvalidConfig)
	}

	tracer := config.TraceLogger
	if tracer == nil {
		tracer = trace.NoopLogger{}
	}
	return &Driver{
		config: config,
		host:   h,
		ops:    ops,
		state:  StateUnregistered,
		tracer: tracer,
	}, nil
}

// State returns the current registration state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Config returns the driver configuration.
func (d *Driver) Config() Config {
	return d.config
}

// Region returns the held device number region. Zero unless registered.
func (d *Driver) Region() devnum.Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.region
}

// NodePaths returns the paths of the published nodes, in minor order.
// Empty unless registered.
func (d *Driver) NodePaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	paths := make([]string, 0, len(d.nodes))
	for _, n := range d.nodes {
		paths = append(paths, n.Path())
	}
	return paths
}

// Register walks the forward path: allocate a device number region,
// bind the dispatch table, create the class, publish one node per
// minor. If any step fails, every completed step is released in
// reverse order before Register returns, and the driver rests in the
// Failed state; a later Register starts over.
//
// An identity allocation failure is returned as-is; failures of later
// steps wrap ErrRegistration. The context is consulted between steps,
// and a cancellation unwinds like any other failure.
func (d *Driver) Register(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateRegistered {
		return ErrAlreadyRegistered
	}

	// Completed steps push their inverse; fail runs the stack in
	// reverse so the host ends where it started.
	var undo []func()
	fail := func(step string, err error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		d.emitError(step, err)
		d.setState(StateFailed, step)
		return err
	}

	d.debugLog("registering device",
		"device", d.config.DeviceName,
		"class", d.config.ClassName,
		"firstMinor", d.config.FirstMinor,
		"count", d.config.MinorCount)

	region, err := d.host.AllocateRegion(d.config.DeviceName, d.config.FirstMinor, d.config.MinorCount)
	if err != nil {
		return fail("allocate identity", err)
	}
	undo = append(undo, func() { d.host.ReleaseRegion(region) })
	d.setState(StateIdentityAllocated, "region "+region.String())

	if err := ctx.Err(); err != nil {
		return fail("bind dispatch", fmt.Errorf("%w: %w", ErrRegistration, err))
	}
	binding, err := d.host.BindDevice(region, d.ops)
	if err != nil {
		return fail("bind dispatch", fmt.Errorf("%w: bind dispatch: %w", ErrRegistration, err))
	}
	undo = append(undo, func() { d.host.UnbindDevice(binding) })
	d.setState(StateDispatchBound, "")

	if err := ctx.Err(); err != nil {
		return fail("create class", fmt.Errorf("%w: %w", ErrRegistration, err))
	}
	class, err := d.host.CreateClass(d.config.ClassName)
	if err != nil {
		return fail("create class", fmt.Errorf("%w: create class: %w", ErrRegistration, err))
	}
	undo = append(undo, func() { d.host.DestroyClass(class) })
	d.setState(StateClassCreated, "class "+d.config.ClassName)

	nodes := make([]host.Node, 0, d.config.MinorCount)
	for i := uint32(0); i < d.config.MinorCount; i++ {
		if err := ctx.Err(); err != nil {
			return fail("create node", fmt.Errorf("%w: %w", ErrRegistration, err))
		}
		minor := d.config.FirstMinor + i
		name := fmt.Sprintf("%s%d", d.config.DeviceName, minor)
		node, err := d.host.CreateNode(class, name, devnum.Mkdev(region.Major, minor))
		if err != nil {
			return fail("create node", fmt.Errorf("%w: create node %s: %w", ErrRegistration, name, err))
		}
		undo = append(undo, func() { d.host.RemoveNode(node) })
		nodes = append(nodes, node)
	}

	d.region = region
	d.binding = binding
	d.class = class
	d.nodes = nodes
	d.setState(StateRegistered, "")

	d.debugLog("device registered", "region", region.String(), "nodes", len(nodes))
	return nil
}

// Unregister walks the reverse path: remove nodes, destroy the class,
// unbind dispatch, release the identity. No step is skipped and none
// can fail. Fails with ErrNotRegistered unless the driver is
// registered.
func (d *Driver) Unregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateRegistered {
		return ErrNotRegistered
	}

	for i := len(d.nodes) - 1; i >= 0; i-- {
		d.host.RemoveNode(d.nodes[i])
	}
	d.host.DestroyClass(d.class)
	d.host.UnbindDevice(d.binding)
	d.host.ReleaseRegion(d.region)

	d.nodes = nil
	d.class = nil
	d.binding = nil
	d.region = devnum.Region{}
	d.setState(StateUnregistered, "unregistered")

	d.debugLog("device unregistered", "device", d.config.DeviceName)
	return nil
}

// setState transitions the state machine and emits the change.
// Caller holds d.mu.
func (d *Driver) setState(s State, reason string) {
	old := d.state
	d.state = s

	d.debugLog("driver state change",
		"old", old.String(),
		"new", s.String(),
		"reason", reason)
	d.tracer.Log(trace.Event{
		Timestamp: time.Now(),
		Device:    d.config.DeviceName,
		Category:  trace.CategoryState,
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.StateEntityDriver,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

// emitError emits a registration failure to the trace.
func (d *Driver) emitError(step string, err error) {
	errno := fileops.ErrnoOf(err).Errno()
	d.tracer.Log(trace.Event{
		Timestamp: time.Now(),
		Device:    d.config.DeviceName,
		Category:  trace.CategoryError,
		Error: &trace.ErrorEventData{
			Context: step,
			Message: err.Error(),
			Errno:   &errno,
		},
	})
}

// debugLog logs a debug message if logging is enabled.
func (d *Driver) debugLog(msg string, args ...any) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, args...)
	}
}
