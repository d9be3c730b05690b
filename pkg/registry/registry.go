package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/host"
	"github.com/devhost-project/devhost-go/pkg/persistence"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

// Registry errors.
var (
	ErrNotAllocated  = errors.New("region not allocated")
	ErrMajorBusy     = errors.New("major already bound")
	ErrClassExists   = errors.New("class already registered")
	ErrClassNotFound = errors.New("class not registered")
	ErrNodeExists    = errors.New("node path already taken")
)

// binding routes a device number region to a driver's file operations.
type binding struct {
	region devnum.Region
	ops    fileops.FileOperations
}

// Region returns the device number region the binding covers.
func (b *binding) Region() devnum.Region { return b.region }

// deviceClass is a registered class name.
type deviceClass struct {
	name string
}

// Name returns the class name.
func (c *deviceClass) Name() string { return c.name }

// deviceNode is a published node in the device namespace.
type deviceNode struct {
	path   string
	num    devnum.DevNum
	class  string
	device string
}

// Path returns the node path relative to the device root.
func (n *deviceNode) Path() string { return n.path }

// Num returns the device number the node carries.
func (n *deviceNode) Num() devnum.DevNum { return n.num }

// Registry is the in-process device host.
type Registry struct {
	mu sync.RWMutex

	alloc *devnum.Allocator

	// Held regions by major; BindDevice only accepts regions found here.
	regions map[uint32]devnum.Region

	// Routing and namespace tables.
	bindings map[uint32]*binding
	classes  map[string]*deviceClass
	nodes    map[string]*deviceNode

	// File accounting.
	openFiles  int
	totalOpens uint64

	// Logger for debug output (optional).
	logger *slog.Logger

	// Trace logger for dispatch and namespace events (never nil).
	tracer trace.Logger

	// Persistence (optional, set by CLI).
	stateStore *persistence.HostStateStore
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		alloc:    devnum.NewAllocator(),
		regions:  make(map[uint32]devnum.Region),
		bindings: make(map[uint32]*binding),
		classes:  make(map[string]*deviceClass),
		nodes:    make(map[string]*deviceNode),
		tracer:   trace.NoopLogger{},
	}
}

// SetLogger sets the logger for debug output. Call before use.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetTraceLogger sets the trace logger for dispatch and namespace
// events. Call before use; nil disables tracing.
func (r *Registry) SetTraceLogger(tracer trace.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracer == nil {
		tracer = trace.NoopLogger{}
	}
	r.tracer = tracer
}

// SetStateStore sets the state store for persistence.
func (r *Registry) SetStateStore(store *persistence.HostStateStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateStore = store
}

// AllocateRegion acquires a free major and the given minor range,
// recorded against name.
func (r *Registry) AllocateRegion(name string, firstMinor, count uint32) (devnum.Region, error) {
	region, err := r.alloc.Allocate(name, firstMinor, count)
	if err != nil {
		return devnum.Region{}, fmt.Errorf("allocate region %s: %w", name, err)
	}

	r.mu.Lock()
	r.regions[region.Major] = region
	r.mu.Unlock()

	r.debugLog("allocated device region", "region", region.String())
	return region, nil
}

// ReleaseRegion returns a region to the pool.
func (r *Registry) ReleaseRegion(region devnum.Region) {
	r.mu.Lock()
	held, ok := r.regions[region.Major]
	if !ok || held != region {
		r.mu.Unlock()
		panic(fmt.Sprintf("registry: release of unheld region %s", region))
	}
	if _, bound := r.bindings[region.Major]; bound {
		r.mu.Unlock()
		panic(fmt.Sprintf("registry: release of region %s with live binding", region))
	}
	delete(r.regions, region.Major)
	r.mu.Unlock()

	r.alloc.Release(region)
	r.debugLog("released device region", "region", region.String())
}

// BindDevice routes the region's device numbers to ops.
func (r *Registry) BindDevice(region devnum.Region, ops fileops.FileOperations) (host.Binding, error) {
	if ops == nil {
		return nil, fmt.Errorf("bind %s: nil file operations", region.Name)
	}

	r.mu.Lock()
	held, ok := r.regions[region.Major]
	if !ok || held != region {
		r.mu.Unlock()
		return nil, fmt.Errorf("bind %s: %w", region.Name, ErrNotAllocated)
	}
	if _, taken := r.bindings[region.Major]; taken {
		r.mu.Unlock()
		return nil, fmt.Errorf("bind %s: %w", region.Name, ErrMajorBusy)
	}
	b := &binding{region: region, ops: ops}
	r.bindings[region.Major] = b
	r.mu.Unlock()

	r.debugLog("bound dispatch", "region", region.String())
	return b, nil
}

// UnbindDevice removes a dispatch binding. Files that already resolved
// the binding keep dispatching into it until closed.
func (r *Registry) UnbindDevice(hb host.Binding) {
	b, ok := hb.(*binding)
	if !ok {
		panic("registry: unbind of foreign binding")
	}

	r.mu.Lock()
	cur, held := r.bindings[b.region.Major]
	if !held || cur != b {
		r.mu.Unlock()
		panic(fmt.Sprintf("registry: unbind of unbound region %s", b.region))
	}
	delete(r.bindings, b.region.Major)
	r.mu.Unlock()

	r.debugLog("unbound dispatch", "region", b.region.String())
}

// CreateClass registers a device class under name.
func (r *Registry) CreateClass(name string) (host.Class, error) {
	if name == "" {
		return nil, fmt.Errorf("create class: %w", fileops.EINVAL)
	}

	r.mu.Lock()
	if _, exists := r.classes[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("create class %s: %w", name, ErrClassExists)
	}
	c := &deviceClass{name: name}
	r.classes[name] = c
	r.mu.Unlock()

	r.debugLog("created device class", "class", name)
	return c, nil
}

// DestroyClass removes a device class. All of the class's nodes must be
// removed first.
func (r *Registry) DestroyClass(hc host.Class) {
	c, ok := hc.(*deviceClass)
	if !ok {
		panic("registry: destroy of foreign class")
	}

	r.mu.Lock()
	if r.classes[c.name] != c {
		r.mu.Unlock()
		panic(fmt.Sprintf("registry: destroy of unregistered class %q", c.name))
	}
	for _, n := range r.nodes {
		if n.class == c.name {
			r.mu.Unlock()
			panic(fmt.Sprintf("registry: destroy of class %q with node %q", c.name, n.path))
		}
	}
	delete(r.classes, c.name)
	r.mu.Unlock()

	r.debugLog("destroyed device class", "class", c.name)
}

// CreateNode publishes a node named name carrying num under class hc.
// The node path is the class name joined with the node name.
func (r *Registry) CreateNode(hc host.Class, name string, num devnum.DevNum) (host.Node, error) {
	c, ok := hc.(*deviceClass)
	if !ok {
		panic("registry: node under foreign class")
	}
	if name == "" {
		return nil, fmt.Errorf("create node: %w", fileops.EINVAL)
	}

	r.mu.Lock()
	if r.classes[c.name] != c {
		r.mu.Unlock()
		return nil, fmt.Errorf("create node %s: %w", name, ErrClassNotFound)
	}
	path := c.name + "/" + name
	if _, exists := r.nodes[path]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("create node %s: %w", path, ErrNodeExists)
	}
	device := ""
	if b, bound := r.bindings[num.Major()]; bound {
		device = b.region.Name
	}
	n := &deviceNode{path: path, num: num, class: c.name, device: device}
	r.nodes[path] = n
	r.mu.Unlock()

	r.debugLog("published device node", "path", path, "dev", num.String())
	r.emitNodeState(device, path, "", "PUBLISHED")
	return n, nil
}

// RemoveNode withdraws a node. Open files on the node stay usable until
// closed; new opens fail.
func (r *Registry) RemoveNode(hn host.Node) {
	n, ok := hn.(*deviceNode)
	if !ok {
		panic("registry: remove of foreign node")
	}

	r.mu.Lock()
	if r.nodes[n.path] != n {
		r.mu.Unlock()
		panic(fmt.Sprintf("registry: remove of unpublished node %q", n.path))
	}
	delete(r.nodes, n.path)
	r.mu.Unlock()

	r.debugLog("removed device node", "path", n.path)
	r.emitNodeState(n.device, n.path, "PUBLISHED", "REMOVED")
}

// NodeCount returns the number of published nodes.
func (r *Registry) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Nodes returns the published node paths in sorted order.
func (r *Registry) Nodes() []string {
	r.mu.RLock()
	paths := make([]string, 0, len(r.nodes))
	for p := range r.nodes {
		paths = append(paths, p)
	}
	r.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// Classes returns the registered class names in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Regions returns the held device number regions sorted by name.
func (r *Registry) Regions() []devnum.Region {
	r.mu.RLock()
	regions := make([]devnum.Region, 0, len(r.regions))
	for _, region := range r.regions {
		regions = append(regions, region)
	}
	r.mu.RUnlock()

	sort.Slice(regions, func(i, j int) bool { return regions[i].Name < regions[j].Name })
	return regions
}

// OpenFiles returns the number of files currently open.
func (r *Registry) OpenFiles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openFiles
}

// TotalOpens returns the number of successful opens since creation.
func (r *Registry) TotalOpens() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalOpens
}

// SaveState persists the name->major assignment table.
// This should be called on graceful shutdown and after registrations.
func (r *Registry) SaveState() error {
	r.mu.RLock()
	store := r.stateStore
	r.mu.RUnlock()

	if store == nil {
		return nil // No store configured, no-op
	}

	return store.Save(&persistence.HostState{
		SavedAt: time.Now(),
		Majors:  r.alloc.Assignments(),
	})
}

// LoadState restores the name->major assignment table from persistence.
// This should be called before the first registration.
func (r *Registry) LoadState() error {
	r.mu.RLock()
	store := r.stateStore
	r.mu.RUnlock()

	if store == nil {
		return nil // No store configured, no-op
	}

	state, err := store.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return nil // No saved state
	}

	r.alloc.Restore(state.Majors)
	r.debugLog("restored major assignments", "count", len(state.Majors))
	return nil
}

// debugLog logs a debug message if logging is enabled.
func (r *Registry) debugLog(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

// emitNodeState emits a node namespace state change to the trace.
func (r *Registry) emitNodeState(device, path, oldState, newState string) {
	r.tracer.Log(trace.Event{
		Timestamp: time.Now(),
		Device:    device,
		Node:      path,
		Category:  trace.CategoryState,
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.StateEntityNode,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// emitDispatch emits a dispatch event to the trace.
func (r *Registry) emitDispatch(device, node, sessionID string, ev trace.DispatchEvent) {
	r.tracer.Log(trace.Event{
		Timestamp: time.Now(),
		Device:    device,
		Node:      node,
		SessionID: sessionID,
		Category:  trace.CategoryDispatch,
		Dispatch:  &ev,
	})
}

// Compile-time interface satisfaction check.
var _ host.Host = (*Registry)(nil)
