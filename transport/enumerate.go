package transport

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port reported by the operating system.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String returns a picker-friendly label such as
// "USB Serial Device (COM9)" or just the port name.
func (p PortInfo) String() string {
	if p.Product == "" {
		return p.Name
	}

	return fmt.Sprintf("%s (%s)", p.Product, p.Name)
}

// listDetailed is replaced in tests.
var listDetailed = enumerator.GetDetailedPortsList

// ListPorts returns the serial ports currently known to the OS, sorted by
// name. USB details are filled in where the platform provides them.
func ListPorts() ([]PortInfo, error) {
	details, err := listDetailed()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	return ports, nil
}
