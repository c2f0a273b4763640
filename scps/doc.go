// Package scps drives a Software Controllable Power Strip over a serial link.
//
// The power strip firmware speaks a line-less ASCII protocol: every command
// is a verb followed by a space and an end-of-message marker, and every reply
// ends with the same marker.
//
//	host → strip:  "ON <SCPS_EOM>"
//	strip → host:  "ON<SCPS_EOM>"
//
// Supported verbs are ON, OFF, AMICONNECTED? (answered with YOURCONNECTED!)
// and STATE? (echoed with true or false).
//
// # Exchanges
//
// A Controller runs at most one command at a time. SendAndWait writes the
// framed command, accumulates received bytes until the marker shows up, and
// gives up after the response timeout (2s by default). Bytes that arrive
// while no command is in flight are discarded.
//
// # Connecting
//
// Connect first opens the port with reset avoidance (DTR held low) so a
// running strip is not rebooted, and checks the AMICONNECTED? handshake. If
// that fails it closes the port, reopens it with DTR raised, which resets
// the strip's microcontroller, waits the settle delay for the firmware to
// boot, and tries the handshake once more.
package scps
