// Package driver coordinates device registration against a host.
//
// A Driver walks the four-step forward path (allocate identity, bind
// dispatch, create class, publish nodes) and the exact reverse path on
// unregistration. A failure anywhere on the forward path unwinds every
// completed step before the error is returned, so a driver never holds
// host resources in any state other than Registered. After such an
// unwind the driver rests in the Failed state; Register may be called
// again and starts from scratch.
package driver
