package scps

import (
	"errors"
	"fmt"
	"time"

	"github.com/scpslabs/go-scps/logger"
)

const (
	// DefaultResponseTimeout is the wait budget for one command's reply.
	DefaultResponseTimeout = 2000 * time.Millisecond
	// DefaultSettleDelay covers the firmware boot after a forced reset.
	DefaultSettleDelay = 2 * time.Second
)

const (
	MinResponseTimeout = 100 * time.Millisecond
	MaxResponseTimeout = 60 * time.Second

	MaxSettleDelay = 30 * time.Second
)

// ControllerConfig holds the configuration of a Controller.
type ControllerConfig struct {
	responseTimeout   time.Duration
	settleDelay       time.Duration
	terminator        string
	connectionTestAck string

	logger logger.Logger
}

// NewControllerConfig creates a controller configuration with defaults,
// modified by opts in order.
func NewControllerConfig(opts ...ConnOption) (*ControllerConfig, error) {
	cfg := &ControllerConfig{
		responseTimeout:   DefaultResponseTimeout,
		settleDelay:       DefaultSettleDelay,
		terminator:        DefaultTerminator,
		connectionTestAck: DefaultConnectionTestAck,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ResponseTimeout returns the wait budget for one reply.
func (cfg *ControllerConfig) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// SettleDelay returns the wait between a forced-reset open and the handshake.
func (cfg *ControllerConfig) SettleDelay() time.Duration { return cfg.settleDelay }

// Terminator returns the end-of-message marker.
func (cfg *ControllerConfig) Terminator() string { return cfg.terminator }

// ConnectionTestAck returns the handshake reply text.
func (cfg *ControllerConfig) ConnectionTestAck() string { return cfg.connectionTestAck }

// GetLogger returns the configured logger.
func (cfg *ControllerConfig) GetLogger() logger.Logger { return cfg.logger }

// ConnOption is a functional option for configuring a ControllerConfig.
type ConnOption interface {
	apply(*ControllerConfig) error
}

type connOptFunc func(*ControllerConfig) error

func (f connOptFunc) apply(cfg *ControllerConfig) error { return f(cfg) }

// WithResponseTimeout sets the reply wait budget. Range: 100ms–60s.
func WithResponseTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ControllerConfig) error {
		if d < MinResponseTimeout || d > MaxResponseTimeout {
			return fmt.Errorf("scps: response timeout %v out of range [%v, %v]",
				d, MinResponseTimeout, MaxResponseTimeout)
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithSettleDelay sets the delay between reopening the port with a forced
// reset and sending the handshake. Range: 0–30s.
func WithSettleDelay(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ControllerConfig) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("scps: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithTerminator overrides the end-of-message marker.
func WithTerminator(s string) ConnOption {
	return connOptFunc(func(cfg *ControllerConfig) error {
		if s == "" {
			return errors.New("scps: terminator must not be empty")
		}
		cfg.terminator = s

		return nil
	})
}

// WithConnectionTestAck overrides the expected handshake reply text.
func WithConnectionTestAck(s string) ConnOption {
	return connOptFunc(func(cfg *ControllerConfig) error {
		if s == "" {
			return errors.New("scps: connection test ack must not be empty")
		}
		cfg.connectionTestAck = s

		return nil
	})
}

// WithLogger sets the logger for the controller.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ControllerConfig) error {
		if l == nil {
			return errors.New("scps: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
