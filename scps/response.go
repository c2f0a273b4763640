package scps

import (
	"bytes"
	"sync"
)

// responseBuffer accumulates the reply to the command in flight.
//
// It is armed for the duration of one exchange. Chunks arriving while it is
// disarmed are rejected, so bytes from an earlier exchange or unsolicited
// output never leak into the next reply.
type responseBuffer struct {
	terminator []byte

	mu    sync.Mutex
	buf   []byte
	armed bool

	// readyCh receives a signal once the buffer contains the terminator.
	readyCh chan struct{}
}

func newResponseBuffer(terminator string) *responseBuffer {
	return &responseBuffer{
		terminator: []byte(terminator),
		readyCh:    make(chan struct{}, 1),
	}
}

// arm clears the buffer and starts accepting chunks.
func (rb *responseBuffer) arm() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf = rb.buf[:0]
	rb.armed = true

	select {
	case <-rb.readyCh:
	default:
	}
}

// disarm stops accepting chunks. The collected text stays readable.
func (rb *responseBuffer) disarm() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.armed = false
}

// append adds chunk to the buffer. It returns false when the buffer is not
// armed and the chunk was dropped.
func (rb *responseBuffer) append(chunk []byte) bool {
	rb.mu.Lock()
	if !rb.armed {
		rb.mu.Unlock()
		return false
	}

	rb.buf = append(rb.buf, chunk...)
	done := bytes.Contains(rb.buf, rb.terminator)
	rb.mu.Unlock()

	if done {
		select {
		case rb.readyCh <- struct{}{}:
		default:
		}
	}

	return true
}

// ready is signaled when the terminator has been seen.
func (rb *responseBuffer) ready() <-chan struct{} {
	return rb.readyCh
}

// text returns the collected text and whether it contains the terminator.
func (rb *responseBuffer) text() (string, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return string(rb.buf), bytes.Contains(rb.buf, rb.terminator)
}
