// Package transport owns the serial link to a power strip controller.
//
// A Transport opens one serial port at a time (9600 baud, 8N1, no flow
// control), runs a background read loop for the lifetime of the open
// handle, and hands every non-empty read to a single ChunkHandler in the
// order the bytes arrived. It never interprets the bytes it moves.
//
// # Reset avoidance
//
// Many USB-serial microcontroller boards wire DTR to the MCU reset pin
// through a capacitor, so asserting DTR while opening the port reboots the
// device. Open takes an explicit resetAvoidance flag: true keeps DTR low and
// the device keeps running; false raises DTR and deliberately resets it. The
// caller decides which one it wants, typically trying the gentle open first.
//
// # Read loop
//
// The port is given a short read timeout so Read returns periodically even
// when the line is idle. Reads that time out with no data are ignored. A
// read error while the handle is still open is logged and the loop keeps
// going; once Close has been called the loop exits and is only restarted by
// a later Open.
package transport
