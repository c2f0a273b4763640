// Package transporttest provides an in-memory serial port for tests of code
// built on package transport.
package transporttest

import (
	"errors"
	"sync"
	"time"

	gobug "go.bug.st/serial"

	"github.com/scpslabs/go-scps/transport"
)

// ErrPortClosed is returned by Read and Write after Close.
var ErrPortClosed = errors.New("transporttest: port closed")

const rxQueueSize = 256

// Port is a fake transport.Port. Bytes queued with Feed are returned by Read
// in order; bytes passed to Write are recorded and handed to the write hook.
type Port struct {
	rx        chan []byte
	readErrs  chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	pending     []byte
	readTimeout time.Duration
	written     []byte
	writeErr    error
	closeErr    error
	writeHook   func(data []byte)
}

var _ transport.Port = (*Port)(nil)

// NewPort creates an open fake port.
func NewPort() *Port {
	return &Port{
		rx:       make(chan []byte, rxQueueSize),
		readErrs: make(chan error, 8),
		closed:   make(chan struct{}),
	}
}

// Read returns queued bytes, an injected error, or (0, nil) once the read
// timeout elapses with nothing queued.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()

		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	if timeout <= 0 {
		timeout = transport.DefaultReadPollTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.closed:
		return 0, ErrPortClosed
	case err := <-p.readErrs:
		return 0, err
	case chunk := <-p.rx:
		n := copy(b, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.pending = append(p.pending, chunk[n:]...)
			p.mu.Unlock()
		}

		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write records data and passes a copy to the write hook.
func (p *Port) Write(data []byte) (int, error) {
	if p.IsClosed() {
		return 0, ErrPortClosed
	}

	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()

		return 0, err
	}
	p.written = append(p.written, data...)
	hook := p.writeHook
	p.mu.Unlock()

	if hook != nil {
		cp := make([]byte, len(data))
		copy(cp, data)
		hook(cp)
	}

	return len(data), nil
}

// Close closes the port. It is safe to call more than once.
func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeErr
}

// SetReadTimeout records the read timeout used by Read.
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readTimeout = t

	return nil
}

// ReadTimeout returns the timeout last set with SetReadTimeout.
func (p *Port) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.readTimeout
}

// Feed queues chunks to be returned by Read, one chunk per Read call.
// Chunks fed after Close are dropped.
func (p *Port) Feed(chunks ...[]byte) {
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		cp := make([]byte, len(c))
		copy(cp, c)

		select {
		case <-p.closed:
			return
		case p.rx <- cp:
		}
	}
}

// FeedString queues s as a single chunk.
func (p *Port) FeedString(s string) {
	p.Feed([]byte(s))
}

// FailRead makes the next Read return err.
func (p *Port) FailRead(err error) {
	p.readErrs <- err
}

// SetWriteError makes every following Write fail with err. Passing nil
// restores normal writes.
func (p *Port) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeErr = err
}

// SetCloseError makes Close return err.
func (p *Port) SetCloseError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeErr = err
}

// SetWriteHook installs fn to be called with every successful write.
func (p *Port) SetWriteHook(fn func(data []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeHook = fn
}

// Written returns everything written so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, len(p.written))
	copy(out, p.written)

	return out
}

// IsClosed reports whether Close has been called.
func (p *Port) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// OpenCall records one call made through an Opener.
type OpenCall struct {
	Name string
	Mode gobug.Mode
	Port *Port
	Err  error
}

// ResetAvoidance reports whether the call asked for DTR to stay low.
func (c OpenCall) ResetAvoidance() bool {
	return c.Mode.InitialStatusBits != nil && !c.Mode.InitialStatusBits.DTR
}

// Opener records open calls and builds ports with NewPortFunc.
type Opener struct {
	// NewPortFunc creates the port for the n-th call (zero based). When nil
	// a plain NewPort is returned. Returning an error fails the open.
	NewPortFunc func(n int, name string, mode *gobug.Mode) (*Port, error)

	mu    sync.Mutex
	calls []OpenCall
}

// Open satisfies transport.Opener.
func (o *Opener) Open(name string, mode *gobug.Mode) (transport.Port, error) {
	o.mu.Lock()
	n := len(o.calls)
	o.mu.Unlock()

	var (
		p   *Port
		err error
	)
	if o.NewPortFunc != nil {
		p, err = o.NewPortFunc(n, name, mode)
	} else {
		p = NewPort()
	}

	call := OpenCall{Name: name, Err: err}
	if mode != nil {
		call.Mode = *mode
	}
	if err == nil {
		call.Port = p
	}

	o.mu.Lock()
	o.calls = append(o.calls, call)
	o.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return p, nil
}

// Calls returns the recorded open calls.
func (o *Opener) Calls() []OpenCall {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]OpenCall, len(o.calls))
	copy(out, o.calls)

	return out
}

// LastPort returns the port created by the most recent successful call.
func (o *Opener) LastPort() *Port {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.calls) - 1; i >= 0; i-- {
		if o.calls[i].Port != nil {
			return o.calls[i].Port
		}
	}

	return nil
}
