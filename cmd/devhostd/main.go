// Command devhostd hosts a character device driver in user space.
//
// It registers a Modbus device driver with the device host: a device
// number region is allocated, the dispatch table is bound, a device
// class is created and one node per minor is published. Nodes can be
// exported as unix domain sockets for other processes to open.
//
// Usage:
//
//	devhostd [flags]
//
// Flags:
//
//	-config string       Configuration file path (YAML)
//	-name string         Device name (default "modbus_dev")
//	-class string        Device class name (default "modbus_class")
//	-first-minor uint    First minor number (default 0)
//	-minor-count uint    Number of minors/nodes (default 1)
//	-capacity int        Session capacity, 0 = unlimited (default 0)
//	-state-file string   Persist major assignments here (default off)
//	-trace-file string   Write binary trace stream here (default off)
//	-export-dir string   Export nodes as unix sockets here (default off)
//	-lock-file string    Single-instance lock file (default off)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-interactive         Run the interactive shell
//	-version             Show version information
//
// Examples:
//
//	# Register one modbus node and wait for signals
//	devhostd
//
//	# Four nodes, exported as sockets, with persistent majors
//	devhostd -minor-count 4 -export-dir /run/devhost -state-file /var/lib/devhost/state.json
//
//	# Poke the device from the built-in shell with tracing on
//	devhostd -interactive -trace-file ./devhost.dtrace -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/devhost-project/devhost-go/cmd/devhostd/interactive"
	"github.com/devhost-project/devhost-go/pkg/config"
	"github.com/devhost-project/devhost-go/pkg/driver"
	"github.com/devhost-project/devhost-go/pkg/export"
	"github.com/devhost-project/devhost-go/pkg/modbus"
	"github.com/devhost-project/devhost-go/pkg/persistence"
	"github.com/devhost-project/devhost-go/pkg/registry"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

var (
	Version   = "0.1.0"
	BuildDate = "dev"
	GitCommit = "unknown"
)

var (
	configFile      = flag.String("config", "", "Configuration file path (YAML)")
	deviceName      = flag.String("name", config.Default().Device.Name, "Device name")
	className       = flag.String("class", config.Default().Device.Class, "Device class name")
	firstMinor      = flag.Uint("first-minor", 0, "First minor number")
	minorCount      = flag.Uint("minor-count", 1, "Number of minors/nodes")
	sessionCapacity = flag.Int("capacity", 0, "Session capacity, 0 = unlimited")
	stateFile       = flag.String("state-file", "", "Persist major assignments here")
	traceFile       = flag.String("trace-file", "", "Write binary trace stream here")
	exportDir       = flag.String("export-dir", "", "Export nodes as unix sockets here")
	lockFile        = flag.String("lock-file", "", "Single-instance lock file")
	logLevel        = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	interactiveMode = flag.Bool("interactive", false, "Run the interactive shell")
	showVersion     = flag.Bool("version", false, "Show version information")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion {
		fmt.Printf("devhostd %s (built %s, commit %s)\n", Version, BuildDate, GitCommit)
		return 0
	}

	// Build the configuration: defaults, then file, then flags.
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	setupLogging(cfg.LogLevel)

	if *lockFile != "" {
		release, err := acquireLock(*lockFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer release()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Trace sink: file stream, debug log mirror, or both.
	var tracer trace.Logger = trace.NoopLogger{}
	if cfg.TraceFile != "" {
		fileTracer, err := trace.NewFileLogger(cfg.TraceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open trace file: %v\n", err)
			return 1
		}
		defer fileTracer.Close()
		tracer = fileTracer
		if cfg.LogLevel == "debug" {
			tracer = trace.NewMultiLogger(fileTracer, trace.NewSlogAdapter(logger))
		}
	} else if cfg.LogLevel == "debug" {
		tracer = trace.NewSlogAdapter(logger)
	}

	log.Println("Device Host Daemon")
	log.Println("==================")
	log.Printf("Device: %s (class %s, minors %d..%d)",
		cfg.Device.Name, cfg.Device.Class,
		cfg.Device.FirstMinor, cfg.Device.FirstMinor+cfg.Device.MinorCount-1)

	// Host registry with optional persistent majors.
	reg := registry.New()
	reg.SetLogger(logger)
	reg.SetTraceLogger(tracer)

	if cfg.StateFile != "" {
		reg.SetStateStore(persistence.NewHostStateStore(cfg.StateFile))
		if err := reg.LoadState(); err != nil {
			log.Printf("Warning: failed to load host state: %v", err)
		}
	}

	handler := modbus.NewHandler(cfg.SessionCapacity)
	handler.SetLogger(logger)

	drv, err := driver.New(reg, handler, driver.Config{
		DeviceName:  cfg.Device.Name,
		ClassName:   cfg.Device.Class,
		FirstMinor:  cfg.Device.FirstMinor,
		MinorCount:  cfg.Device.MinorCount,
		Logger:      logger,
		TraceLogger: tracer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create driver: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := drv.Register(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to register driver: %v\n", err)
		return 1
	}
	log.Printf("Driver registered (state: %s, region: %s)", drv.State(), drv.Region())
	for _, path := range drv.NodePaths() {
		log.Printf("Node published: %s", path)
	}

	var exporter *export.Exporter
	if cfg.ExportDir != "" {
		exporter, err = export.New(reg, export.Config{
			BaseDir: cfg.ExportDir,
			Logger:  logger,
		})
		if err == nil {
			err = exporter.Start(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start exporter: %v\n", err)
			if uerr := drv.Unregister(); uerr != nil {
				log.Printf("Error unregistering driver: %v", uerr)
			}
			return 1
		}
		log.Printf("Exporting nodes under %s", cfg.ExportDir)
	}

	if *interactiveMode {
		shell, err := interactive.New(reg, drv, handler)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create shell: %v\n", err)
			return 1
		}
		// Redirect log output through readline to avoid interfering
		// with the prompt.
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	// Wait for shutdown signal or shell exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")

	if exporter != nil {
		if err := exporter.Stop(); err != nil {
			log.Printf("Error stopping exporter: %v", err)
		}
	}

	if cfg.StateFile != "" {
		if err := reg.SaveState(); err != nil {
			log.Printf("Warning: failed to save host state: %v", err)
		}
	}

	if err := drv.Unregister(); err != nil {
		log.Printf("Error unregistering driver: %v", err)
	}

	log.Println("Goodbye!")
	return 0
}

// applyFlagOverrides copies every flag set on the command line over the
// loaded configuration. Unset flags keep the file or default values.
func applyFlagOverrides(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Device.Name = *deviceName
		case "class":
			cfg.Device.Class = *className
		case "first-minor":
			cfg.Device.FirstMinor = uint32(*firstMinor)
		case "minor-count":
			cfg.Device.MinorCount = uint32(*minorCount)
		case "capacity":
			cfg.SessionCapacity = *sessionCapacity
		case "state-file":
			cfg.StateFile = *stateFile
		case "trace-file":
			cfg.TraceFile = *traceFile
		case "export-dir":
			cfg.ExportDir = *exportDir
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
