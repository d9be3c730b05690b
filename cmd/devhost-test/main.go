// Command devhost-test runs conformance scenarios against the device
// host implementation.
//
// Scenarios are YAML files describing registration lifecycle steps and
// file operations together with the outputs they must produce. Each
// scenario runs on a fresh in-process host, so scenarios cannot
// interfere with each other.
//
// Usage:
//
//	devhost-test [flags]
//
// Flags:
//
//	-scenarios string   Path to the scenario directory (required)
//	-device string      Device name scenarios register (default "modbus_dev")
//	-class string       Class name scenarios register under (default "modbus_class")
//	-timeout duration   Default scenario timeout (default 30s)
//	-verbose            Print every step, not just failures
//
// Examples:
//
//	# Run the shipped conformance scenarios
//	devhost-test -scenarios internal/testharness/runner/testdata
//
//	# Verbose run with a tighter per-scenario timeout
//	devhost-test -scenarios ./cases -timeout 5s -verbose
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/devhost-project/devhost-go/internal/testharness/loader"
	"github.com/devhost-project/devhost-go/internal/testharness/runner"
)

var (
	scenarioDir = flag.String("scenarios", "", "Path to the scenario directory")
	deviceName  = flag.String("device", "", "Device name scenarios register (default \"modbus_dev\")")
	className   = flag.String("class", "", "Class name scenarios register under (default \"modbus_class\")")
	timeout     = flag.Duration("timeout", 30*time.Second, "Default scenario timeout")
	verbose     = flag.Bool("verbose", false, "Print every step, not just failures")
)

func main() {
	flag.Parse()

	if *scenarioDir == "" {
		fmt.Fprintln(os.Stderr, "Error: scenario directory is required (-scenarios)")
		flag.Usage()
		os.Exit(1)
	}

	log.SetFlags(log.Ltime)
	printBanner()

	scenarios, err := loader.LoadDirectory(*scenarioDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no scenarios in %s\n", *scenarioDir)
		os.Exit(1)
	}
	log.Printf("Loaded %d scenarios from %s", len(scenarios), *scenarioDir)

	r := runner.New(runner.Config{
		DeviceName:     *deviceName,
		ClassName:      *className,
		DefaultTimeout: *timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary := r.RunAll(ctx, scenarios)
	for _, res := range summary.Results {
		printResult(res)
	}

	log.Printf("%d passed, %d failed", summary.Passed, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func printResult(res *runner.Result) {
	status := "PASS"
	if !res.Passed {
		status = "FAIL"
	}
	log.Printf("%s %s: %s (%s)", status, res.Scenario.ID, res.Scenario.Name,
		res.Duration.Round(time.Millisecond))

	if *verbose {
		for _, sr := range res.Steps {
			if sr.Passed {
				log.Printf("  step %d %s: ok", sr.Index, sr.Action)
			} else {
				log.Printf("  step %d %s: %s", sr.Index, sr.Action, sr.Message)
			}
		}
	} else if !res.Passed && res.Err != nil {
		log.Printf("  %v", res.Err)
	}
}

func printBanner() {
	fmt.Print(`
 ____   _____ __     __ _   _   ___   ____   _____
|  _ \ | ____|\ \   / /| | | | / _ \ / ___| |_   _|
| | | ||  _|   \ \ / / | |_| || | | |\___ \   | |
| |_| || |___   \ V /  |  _  || |_| | ___) |  | |
|____/ |_____|   \_/   |_| |_| \___/ |____/   |_|

Device Host Conformance Runner
`)
}
