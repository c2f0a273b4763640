package scps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseBuffer_DropsWhileDisarmed(t *testing.T) {
	rb := newResponseBuffer(DefaultTerminator)

	assert.False(t, rb.append([]byte("noise")))

	text, done := rb.text()
	assert.Empty(t, text)
	assert.False(t, done)
}

func TestResponseBuffer_SignalsOnTerminator(t *testing.T) {
	rb := newResponseBuffer(DefaultTerminator)
	rb.arm()

	require.True(t, rb.append([]byte("YOURCONN")))
	select {
	case <-rb.ready():
		t.Fatal("ready before terminator")
	default:
	}

	require.True(t, rb.append([]byte("ECTED!<SCPS_")))
	require.True(t, rb.append([]byte("EOM>")))

	select {
	case <-rb.ready():
	default:
		t.Fatal("not ready after terminator")
	}

	text, done := rb.text()
	assert.True(t, done)
	assert.Equal(t, "YOURCONNECTED!<SCPS_EOM>", text)
}

func TestResponseBuffer_ArmClearsPrevious(t *testing.T) {
	rb := newResponseBuffer(DefaultTerminator)

	rb.arm()
	rb.append([]byte("ON<SCPS_EOM>"))
	rb.disarm()

	// text survives disarm
	text, _ := rb.text()
	assert.Equal(t, "ON<SCPS_EOM>", text)

	assert.False(t, rb.append([]byte("late")))

	rb.arm()
	text, done := rb.text()
	assert.Empty(t, text)
	assert.False(t, done)

	select {
	case <-rb.ready():
		t.Fatal("stale ready signal survived arm")
	default:
	}
}
