package transport

import "go.bug.st/serial/enumerator"

// SetListDetailed swaps the port enumerator and returns a restore func.
func SetListDetailed(fn func() ([]*enumerator.PortDetails, error)) func() {
	prev := listDetailed
	listDetailed = fn

	return func() { listDetailed = prev }
}
