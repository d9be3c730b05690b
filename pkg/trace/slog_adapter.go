package trace

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see device events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}
	if event.Node != "" {
		attrs = append(attrs, slog.String("node", event.Node))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}

	// Add type-specific attributes
	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Dispatch != nil:
		attrs = append(attrs,
			slog.String("op", event.Dispatch.Op.String()),
			slog.Int("errno", event.Dispatch.Errno),
		)
		if event.Dispatch.Bytes != 0 {
			attrs = append(attrs, slog.Int("bytes", event.Dispatch.Bytes))
		}
		if event.Dispatch.Cmd != nil {
			attrs = append(attrs, slog.Uint64("cmd", uint64(*event.Dispatch.Cmd)))
		}
		if event.Dispatch.Offset != nil {
			attrs = append(attrs, slog.Int64("offset", *event.Dispatch.Offset))
		}
		if event.Dispatch.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Dispatch.Duration))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Errno != nil {
			attrs = append(attrs, slog.Int("error_errno", *event.Error.Errno))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "device", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
