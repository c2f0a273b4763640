package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/scpslabs/go-scps/internal/pool"
	"github.com/scpslabs/go-scps/logger"
)

// Sentinel errors for the serial transport.
var (
	ErrInvalidPortName = errors.New("transport: port name is empty")
	ErrOpenFailed      = errors.New("transport: failed to open port")
	ErrCloseFailed     = errors.New("transport: failed to close port")
	ErrWriteFailed     = errors.New("transport: write failed")
)

// ChunkHandler receives each non-empty read from the port. The slice is owned
// by the handler. It is called from the read loop goroutine and must not
// block for long, since the next read waits for it to return.
type ChunkHandler func(chunk []byte)

// handle is one open port and the read loop bound to it.
type handle struct {
	port           Port
	name           string
	resetAvoidance bool
	closed         atomic.Bool
	done           chan struct{}
}

// Transport moves bytes between the application and one serial port.
//
// Open, Close, Write and SetChunkHandler are safe for concurrent use.
type Transport struct {
	cfg    *config
	logger logger.Logger

	mu     sync.Mutex
	handle *handle

	handler atomic.Pointer[ChunkHandler]
	metrics Metrics
}

// New creates a closed Transport.
func New(opts ...Option) (*Transport, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Transport{cfg: cfg, logger: cfg.logger}, nil
}

// SetChunkHandler installs the single subscriber for received bytes,
// replacing any previous one. A nil handler discards received bytes.
func (t *Transport) SetChunkHandler(h ChunkHandler) {
	if h == nil {
		t.handler.Store(nil)
		return
	}
	t.handler.Store(&h)
}

// Open opens portName with the given control-line policy and starts the read
// loop. If a port is already open it returns nil without touching it, even
// if portName or resetAvoidance differ.
func (t *Transport) Open(portName string, resetAvoidance bool) error {
	if portName == "" {
		return ErrInvalidPortName
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		t.logger.Debug("transport: port already open", "port", t.handle.name, "requested", portName)
		return nil
	}

	port, err := t.cfg.opener(portName, newMode(t.cfg.baudRate, resetAvoidance))
	if err != nil {
		t.metrics.incOpenErrCount()
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, portName, err)
	}

	if err := port.SetReadTimeout(t.cfg.readPollTimeout); err != nil {
		_ = port.Close()
		t.metrics.incOpenErrCount()

		return fmt.Errorf("%w: %s: set read timeout: %w", ErrOpenFailed, portName, err)
	}

	h := &handle{
		port:           port,
		name:           portName,
		resetAvoidance: resetAvoidance,
		done:           make(chan struct{}),
	}
	t.handle = h
	t.metrics.incOpenCount()

	go t.readLoop(h)

	t.logger.Info("transport: port opened", "port", portName, "resetAvoidance", resetAvoidance)

	return nil
}

// Close closes the open port and waits for its read loop to exit. Closing a
// closed Transport returns nil.
//
// The Transport is closed after Close returns even when the OS reports an
// error; that error is returned wrapped in ErrCloseFailed.
func (t *Transport) Close() error {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.mu.Unlock()

	if h == nil {
		return nil
	}

	h.closed.Store(true)

	var closeErr error
	if err := h.port.Close(); err != nil {
		t.logger.Error("transport: failed to close port", "port", h.name, "error", err)
		closeErr = fmt.Errorf("%w: %s: %w", ErrCloseFailed, h.name, err)
	}

	timer := pool.GetTimer(t.cfg.closeTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-h.done:
	case <-timer.C:
		t.logger.Warn("transport: read loop did not exit in time",
			"port", h.name, "timeout", t.cfg.closeTimeout)
	}

	t.logger.Info("transport: port closed", "port", h.name)

	return closeErr
}

// Write writes data to the open port. It is a no-op when the port is closed
// or data is empty.
func (t *Transport) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	h := t.current()
	if h == nil {
		return nil
	}

	for written := 0; written < len(data); {
		n, err := h.port.Write(data[written:])
		written += n
		t.metrics.addBytesWritten(n)

		if err != nil {
			if h.closed.Load() {
				// closed underneath us; same as writing to a closed port
				return nil
			}
			t.metrics.incWriteErrCount()

			return fmt.Errorf("%w: %s: %w", ErrWriteFailed, h.name, err)
		}
	}

	t.logger.Debug("transport: sent", "port", h.name, "data", string(data))

	return nil
}

// IsOpen reports whether a port is open.
func (t *Transport) IsOpen() bool {
	return t.current() != nil
}

// PortName returns the name of the open port, or "" when closed.
func (t *Transport) PortName() string {
	if h := t.current(); h != nil {
		return h.name
	}

	return ""
}

// GetMetrics returns the metrics associated with the transport.
func (t *Transport) GetMetrics() *Metrics {
	return &t.metrics
}

func (t *Transport) current() *handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.handle
}

// readLoop reads from h until it is closed, delivering every non-empty read
// to the chunk handler in order.
func (t *Transport) readLoop(h *handle) {
	defer close(h.done)

	buf := make([]byte, t.cfg.readBufferSize)

	for !h.closed.Load() {
		n, err := h.port.Read(buf)
		if n > 0 && !h.closed.Load() {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.metrics.addBytesRead(n)
			t.deliver(h, chunk)
		}

		if err == nil {
			continue
		}

		if h.closed.Load() {
			break
		}

		t.metrics.incReadErrCount()
		t.logger.Error("transport: read error", "port", h.name, "error", err)
		pool.Sleep(readErrorBackoff)
	}

	t.logger.Debug("transport: read loop stopped", "port", h.name)
}

func (t *Transport) deliver(h *handle, chunk []byte) {
	t.logger.Debug("transport: received", "port", h.name, "data", string(chunk))

	if hp := t.handler.Load(); hp != nil {
		(*hp)(chunk)
	}
}
