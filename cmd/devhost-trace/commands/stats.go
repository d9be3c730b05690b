package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/trace"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[trace.Category]int
	DispatchesByOp   map[fileops.Op]int
	FailedDispatches int
	BytesRead        int64
	BytesWritten     int64
	Sessions         map[string]*SessionStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single session.
type SessionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	Device       string
	Node         string
	BytesRead    int64
	BytesWritten int64
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := trace.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[trace.Category]int),
		DispatchesByOp:   make(map[fileops.Op]int),
		Sessions:         make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track dispatch outcomes
		if event.Dispatch != nil {
			stats.DispatchesByOp[event.Dispatch.Op]++
			if event.Dispatch.Errno != 0 {
				stats.FailedDispatches++
			}
			switch event.Dispatch.Op {
			case fileops.OpRead:
				stats.BytesRead += int64(event.Dispatch.Bytes)
			case fileops.OpWrite:
				stats.BytesWritten += int64(event.Dispatch.Bytes)
			}
		}

		// Track session stats
		if event.SessionID != "" {
			sess, ok := stats.Sessions[event.SessionID]
			if !ok {
				sess = &SessionStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Sessions[event.SessionID] = sess
			}
			sess.Events++
			if event.Timestamp.After(sess.LastSeen) {
				sess.LastSeen = event.Timestamp
			}
			if event.Device != "" && sess.Device == "" {
				sess.Device = event.Device
			}
			if event.Node != "" && sess.Node == "" {
				sess.Node = event.Node
			}
			if event.Dispatch != nil {
				switch event.Dispatch.Op {
				case fileops.OpRead:
					sess.BytesRead += int64(event.Dispatch.Bytes)
				case fileops.OpWrite:
					sess.BytesWritten += int64(event.Dispatch.Bytes)
				}
			}
		}

		// Count errors
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Device Trace Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []trace.Category{trace.CategoryState, trace.CategoryDispatch, trace.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Dispatches by operation
	if len(stats.DispatchesByOp) > 0 {
		fmt.Fprintln(w, "Dispatches by Operation:")
		for _, op := range []fileops.Op{fileops.OpOpen, fileops.OpRelease, fileops.OpIoctl, fileops.OpRead, fileops.OpWrite} {
			if count := stats.DispatchesByOp[op]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", op.String()+":", count)
			}
		}
		if stats.FailedDispatches > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", "failed:", stats.FailedDispatches)
		}
		fmt.Fprintf(w, "  %-12s %d read, %d written\n", "bytes:", stats.BytesRead, stats.BytesWritten)
		fmt.Fprintln(w)
	}

	// Sessions
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		// Sort by first seen time
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			shortID := s.id
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortID, s.stats.Events, duration)
			if s.stats.Node != "" {
				fmt.Fprintf(w, "           Node: %s\n", s.stats.Node)
			}
			if s.stats.BytesRead > 0 || s.stats.BytesWritten > 0 {
				fmt.Fprintf(w, "           Bytes: %d read, %d written\n",
					s.stats.BytesRead, s.stats.BytesWritten)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
