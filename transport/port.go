package transport

import (
	"time"

	gobug "go.bug.st/serial"
)

// Serial line parameters expected by the power strip firmware.
const (
	DefaultBaudRate = 9600
	DataBits        = 8
)

// Port is the subset of go.bug.st/serial.Port used by Transport.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens the named port with the given mode.
type Opener func(name string, mode *gobug.Mode) (Port, error)

// openSerial is the default Opener backed by go.bug.st/serial.
func openSerial(name string, mode *gobug.Mode) (Port, error) {
	return gobug.Open(name, mode)
}

// newMode builds the 8N1 mode for baud with the control-line policy.
//
// DTR low keeps the remote MCU out of reset; DTR high resets it when the
// port opens. RTS is always asserted.
func newMode(baud int, resetAvoidance bool) *gobug.Mode {
	return &gobug.Mode{
		BaudRate: baud,
		DataBits: DataBits,
		Parity:   gobug.NoParity,
		StopBits: gobug.OneStopBit,
		InitialStatusBits: &gobug.ModemOutputBits{
			DTR: !resetAvoidance,
			RTS: true,
		},
	}
}
