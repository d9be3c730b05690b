// Package trace provides structured event tracing for device hosting.
//
// This package defines the Logger interface and Event types for capturing
// device lifecycle and dispatch events. It is separate from operational
// logging (slog) - the trace is a complete machine-readable record of what
// the driver and the dispatch path did, suitable for replay and analysis.
//
// # Basic Usage
//
// Components accept a Logger and are handed an implementation:
//
//	// For development: mirror events into slog
//	tracer := trace.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	tracer, _ := trace.NewFileLogger("/var/log/devhost/host.dtrace")
//
//	// Both: use MultiLogger
//	tracer := trace.NewMultiLogger(
//	    trace.NewSlogAdapter(slog.Default()),
//	    fileTracer,
//	)
//
// # Event Types
//
// Three categories of event are captured:
//   - State: driver registration machine and node namespace transitions
//   - Dispatch: one event per file operation crossing the dispatch table
//   - Error: failures at any stage, with errno where one applies
//
// # File Format
//
// Trace files use CBOR encoding with .dtrace extension. The devhost-trace
// CLI tool provides viewing, filtering, and summary statistics.
package trace
