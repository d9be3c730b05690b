// Package runner executes conformance scenarios against a live device
// host. Each scenario runs on a fresh registry, driver and session
// store; steps drive the registration lifecycle and file operations
// and compare the observed outputs with the scenario's expectations.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/devhost-project/devhost-go/internal/testharness/loader"
	"github.com/devhost-project/devhost-go/pkg/driver"
	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/modbus"
	"github.com/devhost-project/devhost-go/pkg/registry"
)

// DefaultTimeout bounds a scenario that declares no timeout of its own.
const DefaultTimeout = 30 * time.Second

// Config configures a Runner.
type Config struct {
	// DeviceName is the device name scenarios register.
	// Defaults to the placeholder device name.
	DeviceName string

	// ClassName is the class name scenarios register under.
	// Defaults to the placeholder class name.
	ClassName string

	// DefaultTimeout bounds scenarios without a timeout of their own.
	DefaultTimeout time.Duration

	// Logger is the optional logger handed to the driver under test.
	Logger *slog.Logger
}

// Runner executes scenarios.
type Runner struct {
	config Config
}

// New creates a scenario runner.
func New(config Config) *Runner {
	if config.DeviceName == "" {
		config.DeviceName = modbus.DeviceName
	}
	if config.ClassName == "" {
		config.ClassName = modbus.ClassName
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	return &Runner{config: config}
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario *loader.Scenario
	Passed   bool
	Duration time.Duration
	Steps    []StepResult

	// Err describes the first failing step, or a setup failure.
	Err error
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int
	Action string
	Passed bool

	// Message is the failure description. Empty for passing steps.
	Message string
}

// Summary aggregates the results of a scenario set.
type Summary struct {
	Results []*Result
	Passed  int
	Failed  int
}

// Run executes a single scenario on a fresh host.
func (r *Runner) Run(ctx context.Context, sc *loader.Scenario) *Result {
	result := &Result{Scenario: sc}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := r.config.DefaultTimeout
	if sc.Timeout != "" {
		if d, err := time.ParseDuration(sc.Timeout); err == nil {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	minors := sc.Minors
	if minors == 0 {
		minors = 1
	}

	reg := registry.New()
	handler := modbus.NewHandler(sc.Capacity)
	drv, err := driver.New(reg, handler, driver.Config{
		DeviceName: r.config.DeviceName,
		ClassName:  r.config.ClassName,
		MinorCount: minors,
		Logger:     r.config.Logger,
	})
	if err != nil {
		result.Err = fmt.Errorf("scenario %s: create driver: %w", sc.ID, err)
		return result
	}

	e := &execution{
		reg:     reg,
		drv:     drv,
		handler: handler,
		files:   make(map[string]*registry.File),
	}
	defer e.cleanup()

	result.Passed = true
	for i := range sc.Steps {
		step := &sc.Steps[i]
		sr := e.executeStep(ctx, i, step)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
			result.Err = fmt.Errorf("step %d (%s): %s", i, step.Action, sr.Message)
			break
		}
	}
	return result
}

// RunAll executes scenarios in order and aggregates the results.
// A cancelled context stops between scenarios, not mid-scenario.
func (r *Runner) RunAll(ctx context.Context, scenarios []*loader.Scenario) *Summary {
	summary := &Summary{}
	for _, sc := range scenarios {
		select {
		case <-ctx.Done():
			return summary
		default:
		}

		res := r.Run(ctx, sc)
		summary.Results = append(summary.Results, res)
		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// execution is the per-scenario state: the host under test and the
// symbolic file handles opened so far.
type execution struct {
	reg     *registry.Registry
	drv     *driver.Driver
	handler *modbus.Handler
	files   map[string]*registry.File
}

func (e *execution) executeStep(ctx context.Context, index int, step *loader.Step) StepResult {
	sr := StepResult{Index: index, Action: step.Action}

	outputs, err := e.dispatch(ctx, step)
	if err != nil {
		sr.Message = err.Error()
		return sr
	}

	if failures := checkExpect(step.Expect, outputs); len(failures) > 0 {
		sr.Message = strings.Join(failures, "; ")
		return sr
	}

	sr.Passed = true
	return sr
}

func (e *execution) dispatch(ctx context.Context, step *loader.Step) (map[string]interface{}, error) {
	switch step.Action {
	case "register":
		return e.doRegister(ctx)
	case "unregister":
		return e.doUnregister()
	case "open":
		return e.doOpen(ctx, step.Params)
	case "close":
		return e.doClose(ctx, step.Params)
	case "read":
		return e.doRead(ctx, step.Params)
	case "write":
		return e.doWrite(ctx, step.Params)
	case "ioctl":
		return e.doIoctl(ctx, step.Params)
	case "lookup":
		return e.doLookup(step.Params)
	default:
		return nil, fmt.Errorf("unknown action: %s", step.Action)
	}
}

// cleanup closes leftover files and unregisters a still-registered
// driver so the next scenario starts clean.
func (e *execution) cleanup() {
	for _, f := range e.files {
		f.Close(context.Background())
	}
	if e.drv.State() == driver.StateRegistered {
		e.drv.Unregister()
	}
}

// snapshot adds the host-wide observables every step reports.
func (e *execution) snapshot(out map[string]interface{}) map[string]interface{} {
	out["state"] = e.drv.State().String()
	out["nodes"] = e.reg.NodeCount()
	out["sessions"] = e.handler.Sessions().Live()
	return out
}

func (e *execution) doRegister(ctx context.Context) (map[string]interface{}, error) {
	err := e.drv.Register(ctx)
	return e.snapshot(map[string]interface{}{"ok": err == nil}), nil
}

func (e *execution) doUnregister() (map[string]interface{}, error) {
	err := e.drv.Unregister()
	return e.snapshot(map[string]interface{}{"ok": err == nil}), nil
}

func (e *execution) doOpen(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	node, err := requiredString(params, "node")
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	name, err := stringParam(params, "as", "f0")
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	f, openErr := e.reg.Open(ctx, node)
	if openErr == nil {
		e.files[name] = f
	}
	return e.snapshot(map[string]interface{}{"errno": errnoName(openErr)}), nil
}

func (e *execution) doClose(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	f, err := e.lookupFile(params)
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	closeErr := f.Close(ctx)
	return e.snapshot(map[string]interface{}{"errno": errnoName(closeErr)}), nil
}

func (e *execution) doRead(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	f, err := e.lookupFile(params)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	length, err := intParam(params, "length", 16)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if length < 0 {
		return nil, fmt.Errorf("read: negative length %d", length)
	}

	buf := make([]byte, length)
	n, readErr := f.Read(ctx, buf, offset)
	return e.snapshot(map[string]interface{}{
		"errno": errnoName(readErr),
		"bytes": n,
	}), nil
}

func (e *execution) doWrite(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	f, err := e.lookupFile(params)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	data, err := stringParam(params, "data", "")
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	n, writeErr := f.Write(ctx, []byte(data), offset)
	return e.snapshot(map[string]interface{}{
		"errno": errnoName(writeErr),
		"bytes": n,
	}), nil
}

func (e *execution) doIoctl(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	f, err := e.lookupFile(params)
	if err != nil {
		return nil, fmt.Errorf("ioctl: %w", err)
	}
	if _, ok := params["cmd"]; !ok {
		return nil, fmt.Errorf("ioctl: cmd param is required")
	}
	cmd, err := intParam(params, "cmd", 0)
	if err != nil {
		return nil, fmt.Errorf("ioctl: %w", err)
	}
	arg, err := intParam(params, "arg", 0)
	if err != nil {
		return nil, fmt.Errorf("ioctl: %w", err)
	}

	ioctlErr := f.Ioctl(ctx, uint32(cmd), uint64(arg))
	return e.snapshot(map[string]interface{}{"errno": errnoName(ioctlErr)}), nil
}

func (e *execution) doLookup(params map[string]interface{}) (map[string]interface{}, error) {
	node, err := requiredString(params, "node")
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	_, lookupErr := e.reg.Lookup(node)
	return e.snapshot(map[string]interface{}{"errno": errnoName(lookupErr)}), nil
}

func (e *execution) lookupFile(params map[string]interface{}) (*registry.File, error) {
	name, err := stringParam(params, "file", "f0")
	if err != nil {
		return nil, err
	}
	f, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("unknown file handle %q (not opened?)", name)
	}
	return f, nil
}

// checkExpect compares a step's expectations against the produced
// outputs. Values compare by their string forms, so YAML scalars match
// Go ints, bools and strings without type gymnastics.
func checkExpect(expect, outputs map[string]interface{}) []string {
	var failures []string

	keys := make([]string, 0, len(expect))
	for key := range expect {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := expect[key]
		got, ok := outputs[key]
		if !ok {
			failures = append(failures, fmt.Sprintf("no %q output from this action", key))
			continue
		}
		if fmt.Sprintf("%v", want) != fmt.Sprintf("%v", got) {
			failures = append(failures, fmt.Sprintf("expected %s=%v, got %v", key, want, got))
		}
	}
	return failures
}

func errnoName(err error) string {
	return fileops.ErrnoOf(err).String()
}

func requiredString(params map[string]interface{}, key string) (string, error) {
	if _, ok := params[key]; !ok {
		return "", fmt.Errorf("%s param is required", key)
	}
	return stringParam(params, key, "")
}

func stringParam(params map[string]interface{}, key, def string) (string, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s param: expected string, got %T", key, v)
	}
	return s, nil
}

func intParam(params map[string]interface{}, key string, def int64) (int64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s param: expected integer, got %T", key, v)
	}
}
