package scps_test

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gobug "go.bug.st/serial"

	"github.com/stretchr/testify/require"

	"github.com/scpslabs/go-scps/logger"
	"github.com/scpslabs/go-scps/scps"
	"github.com/scpslabs/go-scps/transport"
	"github.com/scpslabs/go-scps/transport/transporttest"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

const (
	testResponseTimeout = 300 * time.Millisecond
	testSettleDelay     = 20 * time.Millisecond
)

// strip simulates the power strip firmware on the far side of a fake port.
type strip struct {
	mu sync.Mutex
	on bool
	// ignoreGentle drops the handshake on ports opened with DTR low, like a
	// board that only answers after a reset.
	ignoreGentle bool
	// silent drops every command.
	silent bool
	// replies overrides the reply for a verb.
	replies map[string]string
	// splitAt splits each reply into two chunks at this index when > 0.
	splitAt int
	// delay postpones each reply.
	delay time.Duration

	received []string

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func newStrip() *strip {
	return &strip{replies: make(map[string]string)}
}

func (s *strip) attach(port *transporttest.Port, resetAvoidance bool) {
	port.SetWriteHook(func(data []byte) {
		s.handle(port, resetAvoidance, data)
	})
}

func (s *strip) setReply(verb string, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replies[verb] = reply
}

func (s *strip) setSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.silent = silent
}

func (s *strip) setSplitAt(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.splitAt = i
}

func (s *strip) setDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delay = d
}

func (s *strip) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.received))
	copy(out, s.received)

	return out
}

func (s *strip) handle(port *transporttest.Port, resetAvoidance bool, data []byte) {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}

	verb := strings.TrimSuffix(string(data), " "+scps.DefaultTerminator)

	s.mu.Lock()
	s.received = append(s.received, verb)
	reply, ok := s.replies[verb]
	if !ok {
		reply = s.defaultReply(verb, resetAvoidance)
	}
	if s.silent {
		reply = ""
	}
	splitAt := s.splitAt
	delay := s.delay
	s.mu.Unlock()

	send := func() {
		s.inFlight.Add(-1)

		if reply == "" {
			return
		}
		if splitAt > 0 && splitAt < len(reply) {
			port.Feed([]byte(reply[:splitAt]), []byte(reply[splitAt:]))
			return
		}
		port.FeedString(reply)
	}

	if delay > 0 {
		time.AfterFunc(delay, send)
		return
	}
	send()
}

// defaultReply must be called with s.mu held.
func (s *strip) defaultReply(verb string, resetAvoidance bool) string {
	switch verb {
	case scps.VerbConnectionTest:
		if s.ignoreGentle && resetAvoidance {
			return ""
		}
		return scps.DefaultConnectionTestAck + scps.DefaultTerminator
	case scps.VerbPowerOn:
		s.on = true
		return verb + scps.DefaultTerminator
	case scps.VerbPowerOff:
		s.on = false
		return verb + scps.DefaultTerminator
	case scps.VerbState:
		if s.on {
			return verb + " true" + scps.DefaultTerminator
		}
		return verb + " false" + scps.DefaultTerminator
	default:
		return ""
	}
}

// newTestController creates a Controller whose ports are all driven by s.
func newTestController(t *testing.T, s *strip, opts ...scps.ConnOption) (*scps.Controller, *transport.Transport, *transporttest.Opener) {
	t.Helper()

	opener := &transporttest.Opener{
		NewPortFunc: func(_ int, _ string, mode *gobug.Mode) (*transporttest.Port, error) {
			port := transporttest.NewPort()
			s.attach(port, mode.InitialStatusBits != nil && !mode.InitialStatusBits.DTR)

			return port, nil
		},
	}

	tr, err := transport.New(
		transport.WithOpener(opener.Open),
		transport.WithReadPollTimeout(transport.MinReadPollTimeout),
		transport.WithCloseTimeout(time.Second),
	)
	require.NoError(t, err)

	defaults := []scps.ConnOption{
		scps.WithResponseTimeout(testResponseTimeout),
		scps.WithSettleDelay(testSettleDelay),
	}
	cfg, err := scps.NewControllerConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	ctrl, err := scps.NewController(tr, cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = ctrl.Disconnect() })

	return ctrl, tr, opener
}

// connect creates a Controller and connects it to COM9.
func connect(t *testing.T, s *strip, opts ...scps.ConnOption) (*scps.Controller, *transporttest.Opener) {
	t.Helper()

	ctrl, _, opener := newTestController(t, s, opts...)
	require.NoError(t, ctrl.Connect("COM9"))

	return ctrl, opener
}
