package trace

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devhost-project/devhost-go/pkg/fileops"
)

func TestFileLoggerWritesReadableEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.dtrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(Event{
		Timestamp: time.Now(),
		Device:    "modbus_dev",
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityDriver,
			NewState: "REGISTERED",
		},
	})
	logger.Log(Event{
		Timestamp: time.Now(),
		Device:    "modbus_dev",
		Node:      "modbus_class/modbus_dev0",
		Category:  CategoryDispatch,
		Dispatch:  &DispatchEvent{Op: fileops.OpOpen},
	})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Category != CategoryState {
		t.Errorf("first event category: got %v, want %v", first.Category, CategoryState)
	}

	second, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second.Dispatch == nil || second.Dispatch.Op != fileops.OpOpen {
		t.Errorf("second event: got %+v, want OPEN dispatch", second.Dispatch)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after two events, got %v", err)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.dtrace")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), Category: CategoryState})
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 events across two logger instances, got %d", count)
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.dtrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// Logging after close is silently ignored.
	logger.Log(Event{Timestamp: time.Now(), Category: CategoryError})
}

func TestFileLoggerConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.dtrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const goroutines = 10
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				logger.Log(Event{
					Timestamp: time.Now(),
					Category:  CategoryDispatch,
					Dispatch:  &DispatchEvent{Op: fileops.OpRead},
				})
			}
		}()
	}
	wg.Wait()

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed mid-stream: %v", err)
			}
			break
		}
		count++
	}
	if count != goroutines*perGoroutine {
		t.Errorf("expected %d events, got %d", goroutines*perGoroutine, count)
	}
}
