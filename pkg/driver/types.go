package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

// Driver errors.
var (
	ErrInvalidConfig     = errors.New("invalid driver configuration")
	ErrAlreadyRegistered = errors.New("driver already registered")
	ErrNotRegistered     = errors.New("driver not registered")
	ErrRegistration      = errors.New("registration failed")
)

// State represents the driver registration state.
type State uint8

const (
	// StateUnregistered - the driver holds no host resources.
	StateUnregistered State = iota

	// StateIdentityAllocated - a device number region is held.
	StateIdentityAllocated

	// StateDispatchBound - file operations are routed to the driver.
	StateDispatchBound

	// StateClassCreated - the device class exists.
	StateClassCreated

	// StateRegistered - all nodes are published; the device is live.
	StateRegistered

	// StateFailed - a registration attempt failed and was fully
	// unwound. Externally identical to Unregistered; Register may be
	// retried.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateIdentityAllocated:
		return "IDENTITY_ALLOCATED"
	case StateDispatchBound:
		return "DISPATCH_BOUND"
	case StateClassCreated:
		return "CLASS_CREATED"
	case StateRegistered:
		return "REGISTERED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Driver.
type Config struct {
	// DeviceName names the device. Node names are the device name
	// suffixed with the minor number.
	DeviceName string

	// ClassName names the device class the nodes are published under.
	ClassName string

	// FirstMinor is the first minor number in the device's region.
	FirstMinor uint32

	// MinorCount is the number of minors (and nodes). Must be at
	// least 1.
	MinorCount uint32

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// TraceLogger receives state change and error events.
	// If nil, tracing is disabled.
	TraceLogger trace.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("%w: empty device name", ErrInvalidConfig)
	}
	if strings.ContainsRune(c.DeviceName, '/') {
		return fmt.Errorf("%w: device name %q contains '/'", ErrInvalidConfig, c.DeviceName)
	}
	if c.ClassName == "" {
		return fmt.Errorf("%w: empty class name", ErrInvalidConfig)
	}
	if strings.ContainsRune(c.ClassName, '/') {
		return fmt.Errorf("%w: class name %q contains '/'", ErrInvalidConfig, c.ClassName)
	}
	if c.MinorCount == 0 {
		return fmt.Errorf("%w: minor count must be at least 1", ErrInvalidConfig)
	}
	if c.FirstMinor > devnum.MaxMinor || c.MinorCount-1 > devnum.MaxMinor-c.FirstMinor {
		return fmt.Errorf("%w: minor range %d+%d exceeds %d", ErrInvalidConfig,
			c.FirstMinor, c.MinorCount, uint32(devnum.MaxMinor))
	}
	return nil
}
