// Package loader provides YAML scenario loading for the device host
// conformance harness.
package loader

// Scenario is a single conformance scenario loaded from YAML. Each
// scenario runs against a fresh host with its own driver and session
// store.
type Scenario struct {
	// ID is the unique scenario identifier (e.g., "TC-LIFE-001").
	ID string `yaml:"id"`

	// Name is a human-readable name for the scenario.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Minors is the number of device nodes the driver registers.
	// Zero means one.
	Minors uint32 `yaml:"minors,omitempty"`

	// Capacity caps the session store. Zero means unlimited.
	Capacity int `yaml:"capacity,omitempty"`

	// Timeout is the maximum duration for the scenario (e.g., "30s").
	Timeout string `yaml:"timeout,omitempty"`

	// Steps are the actions to execute in order.
	Steps []Step `yaml:"steps"`
}

// Step is a single action in a scenario.
type Step struct {
	// Action is the action to perform (e.g., "register", "open", "read").
	Action string `yaml:"action"`

	// Params are parameters for the action.
	Params map[string]interface{} `yaml:"params,omitempty"`

	// Expect defines expected outputs after the action.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Description explains what this step does.
	Description string `yaml:"description,omitempty"`
}

// LoadError provides details about a scenario loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return e.File + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
