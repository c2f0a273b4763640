package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/scpslabs/go-scps/logger"
)

const (
	DefaultReadPollTimeout = 100 * time.Millisecond
	DefaultCloseTimeout    = 3 * time.Second
	DefaultReadBufferSize  = 1024

	MinReadPollTimeout = 10 * time.Millisecond
	MaxReadPollTimeout = 5 * time.Second

	MinReadBufferSize = 16
	MaxReadBufferSize = 64 * 1024
)

// readErrorBackoff is the pause after a read error while the port is still
// open, so a persistently failing port does not spin the read loop.
const readErrorBackoff = 50 * time.Millisecond

type config struct {
	baudRate        int
	readPollTimeout time.Duration
	closeTimeout    time.Duration
	readBufferSize  int
	opener          Opener
	logger          logger.Logger
}

func defaultConfig() *config {
	return &config{
		baudRate:        DefaultBaudRate,
		readPollTimeout: DefaultReadPollTimeout,
		closeTimeout:    DefaultCloseTimeout,
		readBufferSize:  DefaultReadBufferSize,
		opener:          openSerial,
		logger:          logger.GetLogger(),
	}
}

// Option is a functional option for New.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate overrides the 9600 baud default.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return fmt.Errorf("transport: baud rate %d must be positive", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithReadPollTimeout sets the read timeout handed to the port. It bounds how
// long the read loop can go without observing a Close.
func WithReadPollTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinReadPollTimeout || d > MaxReadPollTimeout {
			return fmt.Errorf("transport: read poll timeout %v out of range [%v, %v]",
				d, MinReadPollTimeout, MaxReadPollTimeout)
		}
		cfg.readPollTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the read loop to exit.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("transport: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithReadBufferSize sets the size of the read loop buffer, which is also
// the largest chunk a handler can receive.
func WithReadBufferSize(size int) Option {
	return optFunc(func(cfg *config) error {
		if size < MinReadBufferSize || size > MaxReadBufferSize {
			return fmt.Errorf("transport: read buffer size %d out of range [%d, %d]",
				size, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithOpener replaces go.bug.st/serial as the port opener.
func WithOpener(opener Opener) Option {
	return optFunc(func(cfg *config) error {
		if opener == nil {
			return errors.New("transport: opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger for the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("transport: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
