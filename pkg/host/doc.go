// Package host defines the boundary between a device driver and the
// host it registers with.
//
// A driver acquires four resources from its host, in order: a device
// number region (its identity), a dispatch binding (routing the region's
// numbers to the driver's file operations), a device class, and a device
// node visible to user space. Each acquisition can fail; each has an
// inverse that cannot. Implementations live elsewhere (see pkg/registry
// for the in-process one); this package only fixes the contract so that
// drivers can be exercised against real and fault-injecting hosts alike.
package host
