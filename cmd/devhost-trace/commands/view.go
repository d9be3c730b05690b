// Package commands implements the devhost-trace CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devhost-project/devhost-go/pkg/trace"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Category *trace.Category
	Device   string
	Node     string
	Session  string
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event trace.Event) {
	// Header line: timestamp [sess:id] CATEGORY Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	session := shortenSessionID(event.SessionID)

	// Determine event type label
	var typeLabel string
	switch {
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Dispatch != nil:
		typeLabel = event.Dispatch.Op.String()
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [sess:%s] %-8s %s\n", ts, session, event.Category.String(), typeLabel)

	if event.Device != "" {
		fmt.Fprintf(w, "  Device: %s\n", event.Device)
	}
	if event.Node != "" {
		fmt.Fprintf(w, "  Node: %s\n", event.Node)
	}

	// Type-specific details
	switch {
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Dispatch != nil:
		formatDispatchDetails(w, event.Dispatch)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *trace.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatDispatchDetails writes dispatch operation details.
func formatDispatchDetails(w io.Writer, d *trace.DispatchEvent) {
	if d.Errno != 0 {
		fmt.Fprintf(w, "  Result: errno %d\n", d.Errno)
	} else {
		fmt.Fprintf(w, "  Result: OK\n")
	}
	if d.Bytes > 0 {
		fmt.Fprintf(w, "  Bytes: %d\n", d.Bytes)
	}
	if d.Offset != nil {
		fmt.Fprintf(w, "  Offset: %d\n", *d.Offset)
	}
	if d.Cmd != nil {
		fmt.Fprintf(w, "  Cmd: 0x%x\n", *d.Cmd)
	}
	if d.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*d.Duration))
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *trace.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
	if err.Errno != nil {
		fmt.Fprintf(w, "  Errno: %d\n", *err.Errno)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategoryFlag parses a category string from a command-line flag
// (case-insensitive).
func ParseCategoryFlag(s string) (trace.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (trace.Category, error) {
	switch strings.ToLower(s) {
	case "state":
		return trace.CategoryState, nil
	case "dispatch":
		return trace.CategoryDispatch, nil
	case "error":
		return trace.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be state, dispatch, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := trace.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		// Apply filter
		if filter.Category != nil && event.Category != *filter.Category {
			continue
		}
		if filter.Device != "" && event.Device != filter.Device {
			continue
		}
		if filter.Node != "" && event.Node != filter.Node {
			continue
		}
		if filter.Session != "" && event.SessionID != filter.Session {
			continue
		}

		formatEvent(output, event)
	}

	return nil
}
