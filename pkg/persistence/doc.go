// Package persistence provides runtime state persistence for a device host.
//
// This package handles the JSON serialization of host state (device name to
// major number assignments) that must survive daemon restarts, so devices
// re-register under the numbers user space already knows. Trace capture is
// handled separately by the trace package's FileLogger.
package persistence
