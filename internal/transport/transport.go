// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport defines how the capture core reaches a wearable sensor:
// pick a device, open a link, find the data characteristic and subscribe to
// its text frames. Implementations live next to the contract (mqtt, serial,
// ble, mock).
package transport

import (
	"context"
	"errors"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// Default GATT identifiers of the sensor firmware (Nordic UART layout).
const (
	DefaultServiceUUID        = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultCharacteristicUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

var (
	// ErrUnsupported means the transport cannot run on this host at all.
	ErrUnsupported = errors.New("transport unsupported on this host")
	// ErrNoBattery means the device does not report a battery level.
	ErrNoBattery = errors.New("battery level not available")
	// ErrServiceNotFound means the device lacks the configured service or characteristic.
	ErrServiceNotFound = errors.New("service or characteristic not found")
)

// DeviceHandle identifies a selected device. Handles are kept by the
// connection manager and reused for reconnects.
type DeviceHandle interface {
	ID() string
	Name() string
}

// Outcome of a device selection.
type Outcome int

const (
	Selected Outcome = iota
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Selection is the result of asking the user (or config) for a device.
type Selection struct {
	Outcome Outcome
	Device  DeviceHandle
	Err     error
}

func Select(d DeviceHandle) Selection { return Selection{Outcome: Selected, Device: d} }
func Cancel() Selection               { return Selection{Outcome: Cancelled} }
func Fail(err error) Selection        { return Selection{Outcome: Failed, Err: err} }

// Transport is the host side of the wireless stack.
type Transport interface {
	// Available reports ErrUnsupported (possibly wrapped) when the host
	// cannot use this transport.
	Available() error
	// RequestDevice selects the device to bind to slot.
	RequestDevice(ctx context.Context, slot device.SlotID) Selection
	// Connect opens a link. onDisconnect is called at most once, when the
	// link drops without Close being called.
	Connect(ctx context.Context, dev DeviceHandle, onDisconnect func()) (Link, error)
}

// Link is an open connection to one device.
type Link interface {
	Discover(ctx context.Context, service, characteristic string) (Stream, error)
	BatteryLevel(ctx context.Context) (int, error)
	Close() error
}

// Stream is the notifying data characteristic.
type Stream interface {
	CanNotify() bool
	// Start delivers every notification payload to onFrame. onFrame runs on
	// the transport's goroutine and must not block.
	Start(onFrame func([]byte)) error
	Stop() error
}

// handle is the DeviceHandle used by all built-in transports.
type handle struct {
	id   string
	name string
}

func (h handle) ID() string   { return h.id }
func (h handle) Name() string { return h.name }

// NewHandle builds a plain DeviceHandle.
func NewHandle(id, name string) DeviceHandle {
	if name == "" {
		name = id
	}
	return handle{id: id, name: name}
}
