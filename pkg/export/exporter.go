package export

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devhost-project/devhost-go/pkg/registry"
)

const (
	// DefaultReadChunkSize is the buffer size used when streaming device
	// data to and from a peer.
	DefaultReadChunkSize = 4096

	// DefaultSweepInterval is how often the stale connection sweep runs.
	DefaultSweepInterval = 30 * time.Second
)

// Config configures an Exporter.
type Config struct {
	// BaseDir is the directory the socket tree is created under.
	BaseDir string

	// StaleTimeout force-closes peers connected longer than this.
	// 0 disables the sweep.
	StaleTimeout time.Duration

	// SweepInterval is how often stale peers are checked
	// (default: DefaultSweepInterval).
	SweepInterval time.Duration

	// ReadChunkSize is the streaming buffer size
	// (default: DefaultReadChunkSize).
	ReadChunkSize int

	// Logger for debug logging (optional).
	Logger *slog.Logger
}

// Exporter publishes the registry's nodes as unix domain sockets.
// Nodes are snapshotted at Start; nodes published afterwards are not
// picked up, the daemon registers its driver before starting the
// exporter.
type Exporter struct {
	config Config
	reg    *registry.Registry

	mu        sync.Mutex
	listeners map[string]net.Listener

	tracker *connTracker

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an exporter over the given registry.
func New(reg *registry.Registry, config Config) (*Exporter, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if config.ReadChunkSize <= 0 {
		config.ReadChunkSize = DefaultReadChunkSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}

	return &Exporter{
		config:    config,
		reg:       reg,
		listeners: make(map[string]net.Listener),
		tracker:   newConnTracker(),
	}, nil
}

// SocketPath returns the socket path a node is exported at.
func (e *Exporter) SocketPath(nodePath string) string {
	return filepath.Join(e.config.BaseDir, nodePath) + ".sock"
}

// Start creates one socket per registered node and begins accepting
// connections.
func (e *Exporter) Start(ctx context.Context) error {
	if e.running.Load() {
		return fmt.Errorf("exporter already running")
	}

	e.ctx, e.cancel = context.WithCancel(ctx)

	nodes := e.reg.Nodes()
	for _, nodePath := range nodes {
		if err := e.listenNode(nodePath); err != nil {
			e.closeListeners()
			e.cancel()
			return err
		}
	}

	e.running.Store(true)

	e.mu.Lock()
	for nodePath, ln := range e.listeners {
		e.wg.Add(1)
		go e.acceptLoop(nodePath, ln)
	}
	e.mu.Unlock()

	if e.config.StaleTimeout > 0 {
		e.wg.Add(1)
		go e.runStaleSweep()
	}

	e.debugLog("exporter: started", "base_dir", e.config.BaseDir, "nodes", len(nodes))
	return nil
}

// Stop closes all listeners and peer connections and removes the
// socket files.
func (e *Exporter) Stop() error {
	if !e.running.Load() {
		return nil
	}

	e.running.Store(false)
	e.cancel()

	e.closeListeners()
	e.tracker.CloseAll()
	e.wg.Wait()

	e.mu.Lock()
	for nodePath := range e.listeners {
		_ = os.Remove(e.SocketPath(nodePath))
		delete(e.listeners, nodePath)
	}
	e.mu.Unlock()

	e.debugLog("exporter: stopped")
	return nil
}

// ConnectionCount returns the number of connected peers.
func (e *Exporter) ConnectionCount() int {
	return e.tracker.Len()
}

// listenNode creates the socket for one node. A stale socket file left
// by an unclean shutdown is removed first.
func (e *Exporter) listenNode(nodePath string) error {
	sock := e.SocketPath(nodePath)
	if err := os.MkdirAll(filepath.Dir(sock), 0755); err != nil {
		return fmt.Errorf("create socket dir for %s: %w", nodePath, err)
	}
	_ = os.Remove(sock)

	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}

	e.mu.Lock()
	e.listeners[nodePath] = ln
	e.mu.Unlock()
	return nil
}

func (e *Exporter) closeListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ln := range e.listeners {
		_ = ln.Close()
	}
}

// acceptLoop accepts peers for a single node.
func (e *Exporter) acceptLoop(nodePath string, ln net.Listener) {
	defer e.wg.Done()

	for e.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !e.running.Load() {
				return
			}
			e.debugLog("exporter: accept error", "node", nodePath, "error", err)
			continue
		}

		e.wg.Add(1)
		go e.serveConn(nodePath, conn)
	}
}

// serveConn opens the node for one peer and bridges the streams. The
// device session lives exactly as long as the connection.
func (e *Exporter) serveConn(nodePath string, conn net.Conn) {
	defer e.wg.Done()
	defer conn.Close()

	e.tracker.Add(conn)
	defer e.tracker.Remove(conn)

	file, err := e.reg.Open(e.ctx, nodePath)
	if err != nil {
		e.debugLog("exporter: open failed", "node", nodePath, "error", err)
		return
	}
	defer file.Close(context.Background())

	e.debugLog("exporter: peer connected", "node", nodePath, "session", file.TraceID())

	if err := e.streamReads(file, conn); err != nil {
		e.debugLog("exporter: read stream ended", "node", nodePath, "error", err)
		return
	}

	// Device data is exhausted. Half-close so the peer sees EOF, then
	// keep forwarding its writes.
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	e.pumpWrites(conn, file)
	e.debugLog("exporter: peer disconnected", "node", nodePath, "session", file.TraceID())
}

// streamReads copies device data to the peer until the device reports
// end of data.
func (e *Exporter) streamReads(file *registry.File, conn net.Conn) error {
	buf := make([]byte, e.config.ReadChunkSize)
	var off int64

	for {
		n, err := file.Read(e.ctx, buf, off)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return err
		}
		off += int64(n)
	}
}

// pumpWrites forwards peer data into the device until the peer
// disconnects. Bytes the device does not accept are dropped.
func (e *Exporter) pumpWrites(conn net.Conn, file *registry.File) {
	buf := make([]byte, e.config.ReadChunkSize)
	var off int64

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			accepted, werr := file.Write(e.ctx, buf[:n], off)
			if werr != nil {
				return
			}
			off += int64(accepted)
		}
		if err != nil {
			return
		}
	}
}

// runStaleSweep periodically closes peers connected longer than the
// configured stale timeout.
func (e *Exporter) runStaleSweep() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if closed := e.tracker.CloseStale(e.config.StaleTimeout); closed > 0 {
				e.debugLog("exporter: closed stale peers", "count", closed)
			}
		}
	}
}

func (e *Exporter) debugLog(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}
