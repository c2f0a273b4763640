package scps

import (
	"strconv"
	"strings"
)

// Protocol verbs understood by the power strip firmware.
const (
	VerbPowerOn        = "ON"
	VerbPowerOff       = "OFF"
	VerbConnectionTest = "AMICONNECTED?"
	VerbState          = "STATE?"
)

// Protocol literals.
const (
	// DefaultTerminator marks the end of every command and reply.
	DefaultTerminator = "<SCPS_EOM>"
	// DefaultConnectionTestAck is the expected reply text to VerbConnectionTest.
	DefaultConnectionTestAck = "YOURCONNECTED!"
)

// FrameCommand returns the wire form of verb: the verb, one space, and the
// terminator.
func FrameCommand(verb string, terminator string) []byte {
	b := make([]byte, 0, len(verb)+1+len(terminator))
	b = append(b, verb...)
	b = append(b, ' ')
	b = append(b, terminator...)

	return b
}

// PowerState is the outlet state reported by the strip.
type PowerState int

const (
	// PowerUnknown means the strip did not answer the state query in a
	// recognizable way.
	PowerUnknown PowerState = iota
	PowerOff
	PowerOn
)

func (s PowerState) String() string {
	switch s {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	default:
		return "unknown"
	}
}

// Known reports whether s is PowerOn or PowerOff.
func (s PowerState) Known() bool {
	return s == PowerOn || s == PowerOff
}

// parsePowerState extracts the boolean payload following the echoed verb.
// "STATE? true<SCPS_EOM>" yields PowerOn. Anything without the echo or
// without a boolean payload yields PowerUnknown.
func parsePowerState(resp string, verb string, terminator string) PowerState {
	i := strings.Index(resp, verb)
	if i < 0 {
		return PowerUnknown
	}

	payload := resp[i+len(verb):]
	if j := strings.Index(payload, terminator); j >= 0 {
		payload = payload[:j]
	}

	on, err := strconv.ParseBool(strings.TrimSpace(payload))
	if err != nil {
		return PowerUnknown
	}
	if on {
		return PowerOn
	}

	return PowerOff
}
