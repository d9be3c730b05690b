package modbus

import (
	"context"
	"log/slog"

	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/session"
)

// Default identity, matching the historical kernel module.
const (
	// DeviceName is the default device name. Nodes are named
	// DeviceName plus the minor number.
	DeviceName = "modbus_dev"

	// ClassName is the default device class.
	ClassName = "modbus_class"
)

// Handler serves the five dispatch operations for a Modbus device.
// All state is per-open sessions; the data paths are placeholders
// until a serial transport is attached.
type Handler struct {
	sessions *session.Store
	logger   *slog.Logger
}

// NewHandler creates a handler. capacity bounds concurrent sessions;
// 0 means unlimited.
func NewHandler(capacity int) *Handler {
	return &Handler{sessions: session.NewStore(capacity)}
}

// SetLogger sets the logger for debug output. Call before use.
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// Sessions exposes the session store for introspection.
func (h *Handler) Sessions() *session.Store {
	return h.sessions
}

// Open allocates the per-open session.
func (h *Handler) Open(_ context.Context, ref fileops.DeviceRef) (session.Handle, error) {
	sess, err := h.sessions.Create()
	if err != nil {
		return 0, err
	}
	h.debugLog("device opened",
		"node", ref.Path,
		"dev", ref.Num.String(),
		"session", sess.ID)
	return sess.Handle(), nil
}

// Release destroys the session. Called exactly once per Open.
func (h *Handler) Release(_ context.Context, handle session.Handle) error {
	if err := h.sessions.Release(handle); err != nil {
		return err
	}
	h.debugLog("device released", "handle", uint64(handle))
	return nil
}

// Ioctl acknowledges any command. Recognized commands will be carved
// out here when the register map is defined; until then the whole
// command space succeeds as a no-op.
func (h *Handler) Ioctl(_ context.Context, handle session.Handle, cmd uint32, arg uint64) error {
	if _, err := h.sessions.Get(handle); err != nil {
		return err
	}
	h.debugLog("ioctl acknowledged", "cmd", cmd, "arg", arg)
	return nil
}

// Read reports end of data. The serial transport will fill this in
// with register reads.
func (h *Handler) Read(_ context.Context, handle session.Handle, p []byte, off int64) (int, error) {
	if _, err := h.sessions.Get(handle); err != nil {
		return 0, err
	}
	h.debugLog("read", "len", len(p), "off", off)
	return 0, nil
}

// Write accepts nothing. The serial transport will fill this in with
// register writes.
func (h *Handler) Write(_ context.Context, handle session.Handle, p []byte, off int64) (int, error) {
	if _, err := h.sessions.Get(handle); err != nil {
		return 0, err
	}
	h.debugLog("write", "len", len(p), "off", off)
	return 0, nil
}

// debugLog logs a debug message if logging is enabled.
func (h *Handler) debugLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

// Compile-time interface satisfaction check.
var _ fileops.FileOperations = (*Handler)(nil)
