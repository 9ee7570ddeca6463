package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is one open serial handle. Read returns (0, nil) when the configured
// read timeout expires without data; callers treat that as the timeout
// signal, never as EOF.
type Port interface {
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(d time.Duration) error
	Read(p []byte) (int, error)
	Close() error
}

// Provider enumerates and opens host serial ports. The device registry only
// talks to this interface so tests can substitute scripted ports.
type Provider interface {
	Enumerate() ([]string, error)
	Open(port string) (Port, error)
}

// HostProvider is the go.bug.st/serial backed Provider.
type HostProvider struct {
	BaudRate int
}

// NewHostProvider returns a provider opening ports at the given baud rate.
func NewHostProvider(baudRate int) *HostProvider {
	return &HostProvider{BaudRate: baudRate}
}

// Enumerate lists host serial ports with the ignore filter applied.
func (p *HostProvider) Enumerate() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return FilterPorts(ports), nil
}

// Open opens a port in 8N1 mode at the provider's baud rate.
func (p *HostProvider) Open(port string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: p.BaudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}

	handle, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return handle, nil
}
