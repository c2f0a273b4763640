package transport_test

import (
	"errors"
	"testing"
	"time"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scpslabs/go-scps/transport"
	"github.com/scpslabs/go-scps/transport/transporttest"
)

func TestNew_InvalidOptions(t *testing.T) {
	_, err := transport.New(transport.WithBaudRate(0))
	require.Error(t, err)

	_, err = transport.New(transport.WithReadPollTimeout(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read poll timeout")

	_, err = transport.New(transport.WithReadBufferSize(1))
	require.Error(t, err)

	_, err = transport.New(transport.WithOpener(nil))
	require.Error(t, err)

	_, err = transport.New(transport.WithLogger(nil))
	require.Error(t, err)

	_, err = transport.New(transport.WithCloseTimeout(0))
	require.Error(t, err)
}

func TestOpen_ModeAndResetPolicy(t *testing.T) {
	tests := []struct {
		name           string
		resetAvoidance bool
		wantDTR        bool
	}{
		{"gentle open keeps DTR low", true, false},
		{"forced reset raises DTR", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, opener := newTestTransport(t)

			require.NoError(t, tr.Open("COM9", tt.resetAvoidance))
			assert.True(t, tr.IsOpen())
			assert.Equal(t, "COM9", tr.PortName())

			calls := opener.Calls()
			require.Len(t, calls, 1)

			mode := calls[0].Mode
			assert.Equal(t, "COM9", calls[0].Name)
			assert.Equal(t, 9600, mode.BaudRate)
			assert.Equal(t, 8, mode.DataBits)
			assert.Equal(t, gobug.NoParity, mode.Parity)
			assert.Equal(t, gobug.OneStopBit, mode.StopBits)
			require.NotNil(t, mode.InitialStatusBits)
			assert.Equal(t, tt.wantDTR, mode.InitialStatusBits.DTR)
			assert.True(t, mode.InitialStatusBits.RTS)
			assert.Equal(t, tt.resetAvoidance, calls[0].ResetAvoidance())

			assert.Equal(t, transport.MinReadPollTimeout, calls[0].Port.ReadTimeout())
		})
	}
}

func TestOpen_AlreadyOpenIsNoop(t *testing.T) {
	tr, opener := newTestTransport(t)

	require.NoError(t, tr.Open("COM9", true))
	require.NoError(t, tr.Open("COM9", false))
	require.NoError(t, tr.Open("COM3", true))

	assert.Len(t, opener.Calls(), 1)
	assert.Equal(t, "COM9", tr.PortName())
	assert.Equal(t, uint64(1), tr.GetMetrics().OpenCount.Load())
}

func TestOpen_EmptyName(t *testing.T) {
	tr, opener := newTestTransport(t)

	err := tr.Open("", true)
	require.ErrorIs(t, err, transport.ErrInvalidPortName)
	assert.Empty(t, opener.Calls())
}

func TestOpen_Failure(t *testing.T) {
	tr, opener := newTestTransport(t)
	opener.NewPortFunc = func(int, string, *gobug.Mode) (*transporttest.Port, error) {
		return nil, errors.New("access denied")
	}

	err := tr.Open("COM9", true)
	require.ErrorIs(t, err, transport.ErrOpenFailed)
	assert.Contains(t, err.Error(), "access denied")
	assert.False(t, tr.IsOpen())
	assert.Equal(t, uint64(1), tr.GetMetrics().OpenErrCount.Load())
}

func TestReadLoop_DeliversChunksInOrder(t *testing.T) {
	tr, opener := newTestTransport(t)
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)

	require.NoError(t, tr.Open("COM9", true))
	port := opener.LastPort()

	port.Feed([]byte("YOUR"), []byte("CONN"), []byte("ECTED!"), []byte("<SCPS_EOM>"))

	rec.waitFor(t, "YOURCONNECTED!<SCPS_EOM>")
	assert.Equal(t, 4, rec.count())
	assert.Equal(t, uint64(len("YOURCONNECTED!<SCPS_EOM>")), tr.GetMetrics().BytesRead.Load())
}

func TestReadLoop_ChunkLargerThanBuffer(t *testing.T) {
	tr, opener := newTestTransport(t, transport.WithReadBufferSize(transport.MinReadBufferSize))
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)

	require.NoError(t, tr.Open("COM9", true))

	long := "STATE? true<SCPS_EOM> and then some trailing noise"
	opener.LastPort().FeedString(long)

	rec.waitFor(t, long)
	assert.Greater(t, rec.count(), 1)
}

func TestReadLoop_ContinuesAfterReadError(t *testing.T) {
	tr, opener := newTestTransport(t)
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)

	require.NoError(t, tr.Open("COM9", true))
	port := opener.LastPort()

	port.FailRead(errors.New("framing error"))
	port.FeedString("ON<SCPS_EOM>")

	rec.waitFor(t, "ON<SCPS_EOM>")
	require.Eventually(t, func() bool {
		return tr.GetMetrics().ReadErrCount.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, tr.IsOpen())

	port.FeedString("OFF<SCPS_EOM>")
	rec.waitFor(t, "ON<SCPS_EOM>OFF<SCPS_EOM>")
}

func TestReadLoop_NilHandlerDiscards(t *testing.T) {
	tr, opener := newTestTransport(t)
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)
	tr.SetChunkHandler(nil)

	require.NoError(t, tr.Open("COM9", true))
	opener.LastPort().FeedString("OFF<SCPS_EOM>")

	require.Eventually(t, func() bool {
		return tr.GetMetrics().BytesRead.Load() == uint64(len("OFF<SCPS_EOM>"))
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestClose_Idempotent(t *testing.T) {
	tr, opener := newTestTransport(t)

	require.NoError(t, tr.Close())

	require.NoError(t, tr.Open("COM9", true))
	port := opener.LastPort()

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsOpen())
	assert.Equal(t, "", tr.PortName())
	assert.True(t, port.IsClosed())

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsOpen())
}

func TestClose_ReportsOSError(t *testing.T) {
	tr, opener := newTestTransport(t)

	require.NoError(t, tr.Open("COM9", true))
	opener.LastPort().SetCloseError(errors.New("device gone"))

	err := tr.Close()
	require.ErrorIs(t, err, transport.ErrCloseFailed)
	assert.False(t, tr.IsOpen())
}

func TestClose_StopsDelivery(t *testing.T) {
	tr, opener := newTestTransport(t)
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)

	require.NoError(t, tr.Open("COM9", true))
	port := opener.LastPort()
	require.NoError(t, tr.Close())

	port.FeedString("late")
	time.Sleep(3 * transport.MinReadPollTimeout)
	assert.Zero(t, rec.count())
}

func TestReopen_StartsNewReadLoop(t *testing.T) {
	tr, opener := newTestTransport(t)
	rec := newChunkRecorder()
	tr.SetChunkHandler(rec.handle)

	require.NoError(t, tr.Open("COM9", true))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Open("COM9", false))

	require.Len(t, opener.Calls(), 2)
	opener.LastPort().FeedString("again")

	rec.waitFor(t, "again")
}

func TestWrite(t *testing.T) {
	tr, opener := newTestTransport(t)

	// closed: no-op
	require.NoError(t, tr.Write([]byte("ON <SCPS_EOM>")))

	require.NoError(t, tr.Open("COM9", true))
	port := opener.LastPort()

	require.NoError(t, tr.Write(nil))
	require.NoError(t, tr.Write([]byte("ON <SCPS_EOM>")))
	assert.Equal(t, "ON <SCPS_EOM>", string(port.Written()))
	assert.Equal(t, uint64(len("ON <SCPS_EOM>")), tr.GetMetrics().BytesWritten.Load())

	port.SetWriteError(errors.New("io error"))
	err := tr.Write([]byte("OFF <SCPS_EOM>"))
	require.ErrorIs(t, err, transport.ErrWriteFailed)
	assert.Equal(t, uint64(1), tr.GetMetrics().WriteErrCount.Load())
}

func TestListPorts(t *testing.T) {
	restore := transport.SetListDetailed(func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "COM9", IsUSB: true, VID: "2341", PID: "0043", Product: "USB Serial Device"},
			nil,
			{Name: "COM1"},
		}, nil
	})
	defer restore()

	ports, err := transport.ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 2)

	assert.Equal(t, "COM1", ports[0].Name)
	assert.Equal(t, "COM1", ports[0].String())
	assert.Equal(t, "COM9", ports[1].Name)
	assert.True(t, ports[1].IsUSB)
	assert.Equal(t, "USB Serial Device (COM9)", ports[1].String())
}

func TestListPorts_Error(t *testing.T) {
	restore := transport.SetListDetailed(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no permission")
	})
	defer restore()

	_, err := transport.ListPorts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list ports")
}
