package host

import (
	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/fileops"
)

// Binding is an opaque handle for a dispatch binding. While a binding
// is live, operations on any node carrying a number inside its region
// reach the bound file operations.
type Binding interface {
	// Region returns the device number region the binding covers.
	Region() devnum.Region
}

// Class is an opaque handle for a device class.
type Class interface {
	// Name returns the class name.
	Name() string
}

// Node is an opaque handle for a published device node.
type Node interface {
	// Path returns the node path relative to the host's device root.
	Path() string

	// Num returns the device number the node carries.
	Num() devnum.DevNum
}

// Host is the registration surface a driver acquires its resources
// from. Acquisitions return an error and leave the host unchanged on
// failure. Releases never fail; passing a handle that was already
// released (or one from a different host) is a programming error and
// implementations may panic.
//
// The release methods exist so a driver can unwind a partial
// registration: whatever subset of resources it holds, releasing them
// in reverse acquisition order returns the host to its prior state.
type Host interface {
	// AllocateRegion acquires a device number region of count minors
	// starting at firstMinor, under a fresh major, recorded against
	// name for bookkeeping.
	AllocateRegion(name string, firstMinor, count uint32) (devnum.Region, error)

	// ReleaseRegion returns a region to the host's pool.
	ReleaseRegion(r devnum.Region)

	// BindDevice routes the region's device numbers to ops.
	BindDevice(r devnum.Region, ops fileops.FileOperations) (Binding, error)

	// UnbindDevice removes a dispatch binding. In-flight operations
	// that already resolved the binding complete against it.
	UnbindDevice(b Binding)

	// CreateClass registers a device class under name.
	CreateClass(name string) (Class, error)

	// DestroyClass removes a device class.
	DestroyClass(c Class)

	// CreateNode publishes a node named name carrying num under class
	// c, making the device reachable from user space.
	CreateNode(c Class, name string, num devnum.DevNum) (Node, error)

	// RemoveNode withdraws a node. Files already open on it stay
	// usable until closed; new opens fail.
	RemoveNode(n Node)
}
