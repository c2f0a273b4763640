package scps

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scpslabs/go-scps/internal/pool"
	"github.com/scpslabs/go-scps/logger"
	"github.com/scpslabs/go-scps/transport"
)

// Sentinel errors for the power strip protocol.
var (
	ErrNotConnected       = errors.New("scps: not connected")
	ErrResponseTimeout    = errors.New("scps: response timeout")
	ErrTransportFailure   = errors.New("scps: transport failure")
	ErrVerificationFailed = errors.New("scps: connection verification failed")
	ErrUnexpectedResponse = errors.New("scps: unexpected response")
)

// ResponseTimeoutError is returned when no terminator arrives within the
// response timeout. It matches ErrResponseTimeout with errors.Is.
type ResponseTimeoutError struct {
	// Verb is the command that went unanswered.
	Verb string
	// Partial is whatever text was received before the timeout.
	Partial string
	// Timeout is the wait budget that elapsed.
	Timeout time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("scps: response timeout after %v waiting for %q (received %q)", e.Timeout, e.Verb, e.Partial)
}

func (e *ResponseTimeoutError) Unwrap() error {
	return ErrResponseTimeout
}

// Transport is the byte transport a Controller drives.
// *transport.Transport implements it.
type Transport interface {
	Open(portName string, resetAvoidance bool) error
	Close() error
	Write(data []byte) error
	IsOpen() bool
	SetChunkHandler(h transport.ChunkHandler)
}

var _ Transport = (*transport.Transport)(nil)

// Controller talks to one power strip over a Transport.
//
// All methods are safe for concurrent use. Commands are serialized: a second
// caller waits until the first command has its reply or has timed out.
type Controller struct {
	cfg    *ControllerConfig
	logger logger.Logger
	tr     Transport

	// lifecycleMu serializes Connect and Disconnect.
	lifecycleMu sync.Mutex
	// exchangeMu is held for the whole of one command exchange.
	exchangeMu sync.Mutex

	state    atomicConnState
	portName atomic.Pointer[string]
	resp     *responseBuffer

	handlersMu sync.RWMutex
	handlers   []StateChangeHandler

	metrics *ControllerMetrics
}

// NewController creates a Controller on top of tr and installs its chunk
// handler. The controller starts disconnected.
func NewController(tr Transport, cfg *ControllerConfig) (*Controller, error) {
	if tr == nil {
		return nil, errors.New("scps: transport is nil")
	}
	if cfg == nil {
		return nil, errors.New("scps: controller config is nil")
	}

	c := &Controller{
		cfg:     cfg,
		logger:  cfg.logger,
		tr:      tr,
		resp:    newResponseBuffer(cfg.terminator),
		metrics: newControllerMetrics(),
	}
	c.state.ToDisconnected()

	tr.SetChunkHandler(c.handleChunk)

	return c, nil
}

// AddStateChangeHandler adds handlers invoked on every state change, in
// registration order.
func (c *Controller) AddStateChangeHandler(handlers ...StateChangeHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers = append(c.handlers, handlers...)
}

// State returns the current connection state.
func (c *Controller) State() ConnState {
	return c.state.Get()
}

// IsConnected reports whether the controller accepts commands.
func (c *Controller) IsConnected() bool {
	return c.state.Get().IsConnected()
}

// PortName returns the port the controller is connected (or connecting) to.
func (c *Controller) PortName() string {
	if p := c.portName.Load(); p != nil {
		return *p
	}

	return ""
}

// GetLogger returns the logger associated with the controller.
func (c *Controller) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics associated with the controller.
func (c *Controller) GetMetrics() *ControllerMetrics {
	return c.metrics
}

// Connect opens portName and verifies the strip answers the handshake.
//
// Connecting to the port already connected is a no-op. Connecting to another
// port disconnects first. The first attempt keeps DTR low; if the handshake
// fails the port is reopened with DTR raised, which resets the strip, and
// the handshake is retried once after the settle delay. A failure of the
// port open itself is returned without the reset attempt.
func (c *Controller) Connect(portName string) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.IsConnected() {
		if c.PortName() == portName {
			return nil
		}

		if err := c.disconnect(); err != nil {
			return err
		}
	}

	opened, gentleErr := c.tryConnect(portName, true, 0)
	if gentleErr == nil {
		return nil
	}
	if !opened {
		return gentleErr
	}

	c.metrics.incConnectFallbackCount()
	c.logger.Warn("scps: handshake failed, reconnecting with reset",
		"port", portName, "error", gentleErr, "settleDelay", c.cfg.settleDelay)

	opened, err := c.tryConnect(portName, false, c.cfg.settleDelay)
	if err == nil {
		return nil
	}
	if !opened {
		return err
	}

	c.logger.Error("scps: connect failed", "port", portName, "error", err)

	return fmt.Errorf("%w: %s: %w", ErrVerificationFailed, portName, errors.Join(gentleErr, err))
}

// tryConnect performs one open-and-verify round. It reports whether the
// port was opened, so the caller can tell open failures from handshake
// failures. On any failure the controller ends Disconnected.
func (c *Controller) tryConnect(portName string, resetAvoidance bool, settle time.Duration) (bool, error) {
	c.transition(c.state.ToConnecting, ConnectingState)

	if err := c.tr.Open(portName, resetAvoidance); err != nil {
		c.toDisconnected()
		c.logger.Error("scps: failed to open port", "port", portName, "error", err)

		return false, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	c.metrics.incConnectCount()
	c.portName.Store(&portName)
	c.transition(c.state.ToAwaitingVerify, AwaitingVerifyState)

	pool.Sleep(settle)

	if err := c.verify(); err != nil {
		if closeErr := c.tr.Close(); closeErr != nil {
			c.logger.Warn("scps: close after failed handshake", "port", portName, "error", closeErr)
		}
		c.toDisconnected()

		return true, err
	}

	c.transition(c.state.ToConnected, ConnectedState)
	c.logger.Info("scps: connected", "port", portName, "resetAvoidance", resetAvoidance)

	return true, nil
}

// verify sends the connection test and checks for the acknowledgement.
func (c *Controller) verify() error {
	resp, err := c.exchange(VerbConnectionTest, false)
	if err != nil {
		return err
	}

	if !strings.Contains(resp, c.cfg.connectionTestAck) {
		return fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}

	return nil
}

// Disconnect closes the port. It returns nil once the port is closed,
// including when it was not open.
func (c *Controller) Disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	return c.disconnect()
}

func (c *Controller) disconnect() error {
	err := c.tr.Close()
	if c.tr.IsOpen() {
		if err == nil {
			err = errors.New("port still open")
		}
		c.logger.Error("scps: failed to disconnect", "port", c.PortName(), "error", err)

		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	if err != nil {
		c.logger.Warn("scps: port closed with error", "port", c.PortName(), "error", err)
	}

	c.toDisconnected()

	return nil
}

// PowerOn switches the outlet on. It reports true when the strip echoes ON.
func (c *Controller) PowerOn() (bool, error) {
	return c.power(VerbPowerOn)
}

// PowerOff switches the outlet off. It reports true when the strip echoes OFF.
func (c *Controller) PowerOff() (bool, error) {
	return c.power(VerbPowerOff)
}

func (c *Controller) power(verb string) (bool, error) {
	resp, err := c.SendAndWait(verb)
	if err != nil {
		return false, err
	}

	if !strings.Contains(resp, verb) {
		c.logger.Warn("scps: power command not acknowledged", "verb", verb, "response", resp)
		return false, nil
	}

	return true, nil
}

// GetState queries the outlet state. It returns PowerUnknown with a nil
// error when the strip answers without echoing the query, and PowerUnknown
// with the error when the exchange itself fails.
func (c *Controller) GetState() (PowerState, error) {
	resp, err := c.SendAndWait(VerbState)
	if err != nil {
		return PowerUnknown, err
	}

	state := parsePowerState(resp, VerbState, c.cfg.terminator)
	if !state.Known() {
		c.logger.Debug("scps: state query not recognized", "response", resp)
	}

	return state, nil
}

// SendAndWait sends verb and waits for the complete reply.
//
// It returns ErrNotConnected without touching the port unless the controller
// is connected. A reply that does not arrive within the response timeout
// yields a *ResponseTimeoutError holding the partial text.
func (c *Controller) SendAndWait(verb string) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}

	return c.exchange(verb, true)
}

// exchange runs one command/reply round while holding the in-flight guard.
func (c *Controller) exchange(verb string, requireConnected bool) (string, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	// state may have changed while waiting for the guard
	if requireConnected && !c.IsConnected() {
		return "", ErrNotConnected
	}

	c.resp.arm()
	defer c.resp.disarm()

	c.metrics.incCommandCount(verb)

	if err := c.tr.Write(FrameCommand(verb, c.cfg.terminator)); err != nil {
		c.metrics.incTransportErrCount()
		c.logger.Error("scps: failed to send command", "verb", verb, "error", err)

		return "", fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	timer := pool.GetTimer(c.cfg.responseTimeout)
	defer pool.PutTimer(timer)

	for {
		select {
		case <-c.resp.ready():
			if text, ok := c.resp.text(); ok {
				c.metrics.incResponseCount()
				c.logger.Debug("scps: response received", "verb", verb, "response", text)

				return text, nil
			}

		case <-timer.C:
			text, ok := c.resp.text()
			if ok {
				c.metrics.incResponseCount()
				return text, nil
			}

			c.metrics.incTimeoutCount()
			c.logger.Warn("scps: response timeout",
				"verb", verb, "timeout", c.cfg.responseTimeout, "partial", text)

			return "", &ResponseTimeoutError{
				Verb:    verb,
				Partial: text,
				Timeout: c.cfg.responseTimeout,
			}
		}
	}
}

// handleChunk is the transport chunk handler. It runs on the read loop
// goroutine and never blocks.
func (c *Controller) handleChunk(chunk []byte) {
	if !c.resp.append(chunk) {
		c.metrics.incDroppedChunkCount()
		c.logger.Debug("scps: dropping bytes received with no command in flight",
			"data", string(chunk))
	}
}

// transition applies a CAS state change and notifies handlers.
func (c *Controller) transition(to func() bool, newState ConnState) {
	prev := c.state.Get()
	if !to() {
		c.logger.Warn("scps: unexpected state transition",
			"from", c.state.String(), "to", newState)

		return
	}

	c.notify(prev, newState)
}

func (c *Controller) toDisconnected() {
	c.portName.Store(nil)

	if prev := c.state.ToDisconnected(); prev != DisconnectedState {
		c.notify(prev, DisconnectedState)
	}
}

func (c *Controller) notify(prevState ConnState, newState ConnState) {
	c.logger.Debug("scps: state change", "prev", prevState, "new", newState)

	c.handlersMu.RLock()
	handlers := make([]StateChangeHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(prevState, newState)
	}
}
