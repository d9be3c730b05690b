// Command sensor-example demonstrates embedding the device host
// library without the devhostd daemon.
//
// This example shows how to:
//   - Register a driver with several minors
//   - Inspect the allocated identity region and published nodes
//   - Open device files and drive the dispatch contract
//   - Capture host events with the trace package
//
// Usage:
//
//	go run ./cmd/sensor-example
//
// The program registers a two-node sensor device, polls it once a
// second until interrupted, and unregisters cleanly on shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devhost-project/devhost-go/pkg/driver"
	"github.com/devhost-project/devhost-go/pkg/modbus"
	"github.com/devhost-project/devhost-go/pkg/registry"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("Device Host Example")
	log.Println("===================")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	tracer := trace.NewSlogAdapter(logger)

	reg := registry.New()
	reg.SetTraceLogger(tracer)

	handler := modbus.NewHandler(0)

	drv, err := driver.New(reg, handler, driver.Config{
		DeviceName:  "sensor_dev",
		ClassName:   "sensor_class",
		MinorCount:  2,
		TraceLogger: tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create driver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := drv.Register(ctx); err != nil {
		log.Fatalf("Failed to register driver: %v", err)
	}
	log.Printf("Registered sensor_dev (region %s)", drv.Region())
	for _, path := range drv.NodePaths() {
		log.Printf("Node: %s", path)
	}

	go runPolling(ctx, reg, handler)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if err := drv.Unregister(); err != nil {
		log.Printf("Error unregistering: %v", err)
	}
	log.Println("Goodbye!")
}

// runPolling opens the first node once a second and drives the
// session-bound operations against it.
func runPolling(ctx context.Context, reg *registry.Registry, handler *modbus.Handler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := pollOnce(ctx, reg); err != nil {
			log.Printf("Poll failed: %v", err)
			continue
		}
		log.Printf("Poll complete (%d opens so far, %d sessions live)",
			reg.TotalOpens(), handler.Sessions().Live())
	}
}

func pollOnce(ctx context.Context, reg *registry.Registry) error {
	file, err := reg.Open(ctx, "sensor_class/sensor_dev0")
	if err != nil {
		return err
	}
	defer file.Close(context.Background())

	if err := file.Ioctl(ctx, 0x1, 0); err != nil {
		return err
	}
	buf := make([]byte, 32)
	if _, err := file.Read(ctx, buf, 0); err != nil {
		return err
	}
	_, err = file.Write(ctx, []byte("threshold 42"), 0)
	return err
}
