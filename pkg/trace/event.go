package trace

import (
	"time"

	"github.com/devhost-project/devhost-go/pkg/fileops"
)

// Event represents a device trace event captured at any stage of the
// hosting pipeline. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Device is the device name the event belongs to.
	Device string `cbor:"2,keyasint,omitempty"`

	// Node is the node path, for events tied to a published node.
	Node string `cbor:"3,keyasint,omitempty"`

	// SessionID is the session trace identifier (UUID), for events
	// occurring inside an open session.
	SessionID string `cbor:"4,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"6,keyasint,omitempty"` // Lifecycle transitions
	Dispatch    *DispatchEvent    `cbor:"7,keyasint,omitempty"` // File operations
	Error       *ErrorEventData   `cbor:"8,keyasint,omitempty"` // Failures at any stage
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a lifecycle state change.
	CategoryState Category = 0
	// CategoryDispatch indicates a file operation crossing the dispatch table.
	CategoryDispatch Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryDispatch:
		return "DISPATCH"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures driver and namespace lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityDriver indicates a driver registration state change.
	StateEntityDriver StateEntity = 0
	// StateEntityNode indicates a node appearing in or leaving the namespace.
	StateEntityNode StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityDriver:
		return "DRIVER"
	case StateEntityNode:
		return "NODE"
	default:
		return "UNKNOWN"
	}
}

// DispatchEvent captures a single file operation passing through the
// dispatch table.
type DispatchEvent struct {
	// Op is the operation that was dispatched.
	Op fileops.Op `cbor:"1,keyasint"`

	// Bytes is the number of bytes moved (read/write only).
	Bytes int `cbor:"2,keyasint,omitempty"`

	// Errno is the operation outcome: 0 on success, a negated POSIX
	// errno on failure.
	Errno int `cbor:"3,keyasint,omitempty"`

	// Duration is the time spent inside the bound handler.
	// Stored as nanoseconds.
	Duration *time.Duration `cbor:"4,keyasint,omitempty"`

	// Cmd is the ioctl command number (ioctl only).
	Cmd *uint32 `cbor:"5,keyasint,omitempty"`

	// Offset is the file offset the operation targeted (read/write only).
	Offset *int64 `cbor:"6,keyasint,omitempty"`
}

// ErrorEventData captures failures at any stage.
type ErrorEventData struct {
	// Context describes what was being attempted.
	Context string `cbor:"1,keyasint,omitempty"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Errno is the negated POSIX errno (if one applies).
	Errno *int `cbor:"3,keyasint,omitempty"`
}
