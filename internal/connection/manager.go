// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package connection owns the lifecycle of the four sensor links: device
// selection, connect, subscription, drop handling and teardown.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/metrics"
	"github.com/relabs-tech/motion_assessment/internal/transport"
)

var (
	// ErrSelectionCancelled means the operator dismissed the device chooser.
	ErrSelectionCancelled = errors.New("device selection cancelled")
	// ErrTransportUnsupported is returned by every Connect in degraded mode.
	ErrTransportUnsupported = errors.New("wireless transport not supported")
	// ErrConnectAborted means Disconnect was called while connecting.
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

// MeasurementSink receives every decoded measurement, tagged with its slot.
type MeasurementSink interface {
	OnMeasurement(slot device.SlotID, m imu.Measurement)
}

// RecordingState tells the manager whether a drop-out happens mid-test.
type RecordingState interface {
	Recording() bool
}

// Options configures a Manager. Zero values fall back to the firmware's
// default GATT identifiers and a log-only notifier.
type Options struct {
	Service        string
	Characteristic string
	Notifier       Notifier
	Recording      RecordingState
	Metrics        *metrics.Metrics
}

type slotConn struct {
	handle transport.DeviceHandle
	link   transport.Link
	stream transport.Stream
	cancel context.CancelFunc
}

// Manager connects sensors to slots. Connects on different slots run
// concurrently; each slot has at most one attempt in flight.
type Manager struct {
	reg  *device.Registry
	tr   transport.Transport
	sink MeasurementSink
	opts Options

	degraded error

	mu    sync.Mutex
	conns [device.NumSlots]slotConn
	// gen invalidates callbacks and in-flight attempts of older links.
	// Written under mu, read lock-free on the frame path.
	gen [device.NumSlots]atomic.Uint64

	undecodable atomic.Uint64
}

// NewManager checks the transport once. When it is unsupported the manager
// runs degraded: the condition is reported here and every Connect fails
// with ErrTransportUnsupported.
func NewManager(reg *device.Registry, tr transport.Transport, sink MeasurementSink, opts Options) *Manager {
	if opts.Service == "" {
		opts.Service = transport.DefaultServiceUUID
	}
	if opts.Characteristic == "" {
		opts.Characteristic = transport.DefaultCharacteristicUUID
	}
	m := &Manager{reg: reg, tr: tr, sink: sink, opts: opts}

	if mt := opts.Metrics; mt != nil {
		reg.OnChange(func(s device.Status) { mt.SlotState(string(s.ID), int(s.State)) })
	}

	if err := tr.Available(); err != nil {
		m.degraded = err
		log.Printf("connection: transport unavailable, running degraded: %v", err)
		m.notify(Notice{
			Severity: Error,
			Message:  "Sensor connections are not supported on this host. Exercises can still be run without sensor data.",
		})
	}
	return m
}

// Degraded returns the transport error when running degraded.
func (m *Manager) Degraded() error { return m.degraded }

// Undecodable counts frames that carried no measurement.
func (m *Manager) Undecodable() uint64 { return m.undecodable.Load() }

// Connect binds a device to slot and starts streaming. It returns nil
// without doing anything when the slot is connected or already connecting.
// The first successful selection is remembered and reused on reconnect.
func (m *Manager) Connect(ctx context.Context, slot device.SlotID) error {
	i, ok := device.Index(slot)
	if !ok {
		return fmt.Errorf("connect: unknown slot %q", slot)
	}
	if m.degraded != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnsupported, m.degraded)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if !m.reg.BeginConnect(slot) {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen[i].Add(1)
	m.conns[i].cancel = cancel
	h := m.conns[i].handle
	m.mu.Unlock()

	name := device.Slots[i].Name

	if h == nil {
		sel := m.tr.RequestDevice(cctx, slot)
		switch sel.Outcome {
		case transport.Cancelled:
			m.mu.Lock()
			if m.current(i, gen) {
				m.conns[i].cancel = nil
				m.reg.Reset(slot)
			}
			m.mu.Unlock()
			log.Printf("connection: %s selection cancelled", slot)
			m.notify(Notice{Slot: slot, Severity: Info, Message: "No device selected for " + name + "."})
			return ErrSelectionCancelled
		case transport.Failed:
			return m.fail(slot, i, gen, "device selection failed", sel.Err)
		}
		h = sel.Device
		m.mu.Lock()
		if m.current(i, gen) {
			m.conns[i].handle = h
		}
		m.mu.Unlock()
	}

	link, err := m.tr.Connect(cctx, h, func() { m.handleDrop(slot, i, gen) })
	if err != nil {
		return m.fail(slot, i, gen, "connect to "+h.Name()+" failed", err)
	}

	stream, err := link.Discover(cctx, m.opts.Service, m.opts.Characteristic)
	if err != nil {
		link.Close()
		return m.fail(slot, i, gen, "sensor service not found on "+h.Name(), err)
	}

	if stream.CanNotify() {
		if err := stream.Start(func(b []byte) { m.handleFrame(slot, i, gen, b) }); err != nil {
			link.Close()
			return m.fail(slot, i, gen, "subscribe to "+h.Name()+" failed", err)
		}
	} else {
		log.Printf("connection: %s characteristic does not notify, no data will arrive", slot)
	}

	if level, err := link.BatteryLevel(cctx); err == nil {
		m.reg.SetBattery(slot, min(max(level, 0), 100))
	}

	m.mu.Lock()
	if !m.current(i, gen) {
		m.mu.Unlock()
		stream.Stop()
		link.Close()
		log.Printf("connection: %s connect finished after disconnect, closed", slot)
		return ErrConnectAborted
	}
	m.conns[i].link = link
	m.conns[i].stream = stream
	m.conns[i].cancel = nil
	m.reg.MarkConnected(slot, h.Name())
	m.mu.Unlock()

	log.Printf("connection: %s connected to %s", slot, h.Name())
	return nil
}

// ConnectAll walks the slots in order and connects every one that is not
// already connected. A cancelled selection moves on to the next slot, so a
// test can run with fewer sensors. Only non-nil results are returned.
func (m *Manager) ConnectAll(ctx context.Context) map[device.SlotID]error {
	errs := make(map[device.SlotID]error)
	for _, s := range device.Slots {
		if ctx.Err() != nil {
			errs[s.ID] = ctx.Err()
			continue
		}
		if st := m.reg.State(s.ID); st == device.Connected || st == device.Connecting {
			continue
		}
		if err := m.Connect(ctx, s.ID); err != nil {
			errs[s.ID] = err
		}
	}
	return errs
}

// Disconnect tears a slot down and returns it to idle. An attempt still in
// flight is aborted and can no longer mark the slot connected.
func (m *Manager) Disconnect(slot device.SlotID) error {
	i, ok := device.Index(slot)
	if !ok {
		return fmt.Errorf("disconnect: unknown slot %q", slot)
	}

	m.mu.Lock()
	c := &m.conns[i]
	if m.reg.State(slot) == device.Idle && c.link == nil && c.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.gen[i].Add(1)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	link, stream := c.link, c.stream
	c.link, c.stream = nil, nil
	m.reg.Reset(slot)
	m.mu.Unlock()

	closeLink(slot, link, stream)
	log.Printf("connection: %s disconnected", slot)
	return nil
}

// Forget disconnects slot and drops its remembered device, so the next
// Connect asks for a device again.
func (m *Manager) Forget(slot device.SlotID) error {
	if err := m.Disconnect(slot); err != nil {
		return err
	}
	i, _ := device.Index(slot)
	m.mu.Lock()
	m.conns[i].handle = nil
	m.mu.Unlock()
	return nil
}

// Close disconnects every slot.
func (m *Manager) Close() {
	for _, s := range device.Slots {
		m.Disconnect(s.ID)
	}
}

func (m *Manager) handleDrop(slot device.SlotID, i int, gen uint64) {
	m.mu.Lock()
	if !m.current(i, gen) {
		m.mu.Unlock()
		return
	}
	m.gen[i].Add(1)
	c := &m.conns[i]
	link, stream := c.link, c.stream
	c.link, c.stream = nil, nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	m.reg.Reset(slot)
	m.mu.Unlock()

	closeLink(slot, link, stream)

	recording := m.opts.Recording != nil && m.opts.Recording.Recording()
	m.opts.Metrics.Dropout(string(slot), recording)

	name := device.Slots[i].Name
	n := Notice{Slot: slot, Severity: Warning, Message: name + " disconnected."}
	if recording {
		n.Severity = Critical
		n.Message = name + " dropped out mid-test. Reconnect it and retry this exercise."
	}
	log.Printf("connection: %s dropped (recording=%v)", slot, recording)
	m.notify(n)
}

// handleFrame drops frames from superseded attempts and frames that arrive
// before the slot is marked connected.
func (m *Manager) handleFrame(slot device.SlotID, i int, gen uint64, b []byte) {
	if !m.current(i, gen) || m.reg.State(slot) != device.Connected {
		return
	}
	f := imu.Decode(string(b))
	if f.HasBattery() {
		m.reg.SetBattery(slot, f.Battery)
	}
	if f.Measurement == nil {
		if !f.HasBattery() {
			m.undecodable.Add(1)
			m.opts.Metrics.FrameDropped(string(slot))
		}
		return
	}
	m.reg.SetLatest(slot, *f.Measurement)
	m.opts.Metrics.FrameDecoded(string(slot))
	if m.sink != nil {
		m.sink.OnMeasurement(slot, *f.Measurement)
	}
}

// fail moves the slot to error unless the attempt was superseded.
func (m *Manager) fail(slot device.SlotID, i int, gen uint64, msg string, cause error) error {
	reason := msg
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", msg, cause)
	}
	m.mu.Lock()
	current := m.current(i, gen)
	if current {
		m.conns[i].cancel = nil
		m.reg.MarkFailed(slot, reason)
	}
	m.mu.Unlock()

	if !current {
		return ErrConnectAborted
	}
	log.Printf("connection: %s %s", slot, reason)
	m.notify(Notice{Slot: slot, Severity: Error, Message: device.Slots[i].Name + ": " + reason})
	if cause == nil {
		return fmt.Errorf("%s: %s", slot, msg)
	}
	return fmt.Errorf("%s: %s: %w", slot, msg, cause)
}

func (m *Manager) current(i int, gen uint64) bool {
	return m.gen[i].Load() == gen
}

func (m *Manager) notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	if m.opts.Notifier != nil {
		m.opts.Notifier.Notify(n)
	}
}

func closeLink(slot device.SlotID, link transport.Link, stream transport.Stream) {
	if stream != nil {
		if err := stream.Stop(); err != nil {
			log.Printf("connection: %s stop notifications: %v", slot, err)
		}
	}
	if link != nil {
		if err := link.Close(); err != nil {
			log.Printf("connection: %s close link: %v", slot, err)
		}
	}
}
