// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// BLEConfig configures the Bluetooth LE transport.
type BLEConfig struct {
	Service      string
	ScanDuration time.Duration
}

// BLE talks GATT to the sensors through the host's default adapter.
type BLE struct {
	cfg     BLEConfig
	picker  Picker
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	links map[string]*bleLink
}

type bleHandle struct {
	addr bluetooth.Address
	name string
}

func (h bleHandle) ID() string { return h.addr.String() }
func (h bleHandle) Name() string {
	if h.name == "" {
		return h.addr.String()
	}
	return h.name
}

func NewBLE(cfg BLEConfig, picker Picker) *BLE {
	if cfg.ScanDuration == 0 {
		cfg.ScanDuration = 5 * time.Second
	}
	return &BLE{
		cfg:     cfg,
		picker:  picker,
		adapter: bluetooth.DefaultAdapter,
		links:   make(map[string]*bleLink),
	}
}

func (t *BLE) Available() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("%w: enable bluetooth adapter: %v", ErrUnsupported, err)
			return
		}
		t.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
			if connected {
				return
			}
			t.mu.Lock()
			l := t.links[d.Address.String()]
			t.mu.Unlock()
			if l != nil {
				l.dropped()
			}
		})
		log.Println("transport: bluetooth adapter enabled")
	})
	return t.enableErr
}

func (t *BLE) RequestDevice(ctx context.Context, slot device.SlotID) Selection {
	if err := t.Available(); err != nil {
		return Fail(err)
	}
	svc, err := bluetooth.ParseUUID(t.cfg.Service)
	if err != nil {
		return Fail(fmt.Errorf("service uuid %q: %w", t.cfg.Service, err))
	}

	var mu sync.Mutex
	found := make(map[string]bleHandle)
	done := make(chan error, 1)
	go func() {
		done <- t.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(svc) && r.LocalName() == "" {
				return
			}
			mu.Lock()
			found[r.Address.String()] = bleHandle{addr: r.Address, name: r.LocalName()}
			mu.Unlock()
		})
	}()

	timer := time.NewTimer(t.cfg.ScanDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case err := <-done:
		if err != nil {
			return Fail(fmt.Errorf("scan: %w", err))
		}
	}
	if err := t.adapter.StopScan(); err != nil {
		log.Printf("transport: stop scan: %v", err)
	}
	if ctx.Err() != nil {
		return Cancel()
	}

	mu.Lock()
	candidates := make([]DeviceHandle, 0, len(found))
	for _, h := range found {
		candidates = append(candidates, h)
	}
	mu.Unlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name() < candidates[j].Name() })

	return t.picker.Pick(ctx, slot, candidates)
}

func (t *BLE) Connect(_ context.Context, dev DeviceHandle, onDisconnect func()) (Link, error) {
	h, ok := dev.(bleHandle)
	if !ok {
		return nil, fmt.Errorf("device %s was not discovered over bluetooth", dev.ID())
	}
	d, err := t.adapter.Connect(h.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", h.Name(), err)
	}
	l := &bleLink{t: t, id: h.ID(), dev: d, onDisconnect: onDisconnect}
	t.mu.Lock()
	t.links[l.id] = l
	t.mu.Unlock()
	return l, nil
}

type bleLink struct {
	t            *BLE
	id           string
	dev          bluetooth.Device
	onDisconnect func()
	once         sync.Once
}

func (l *bleLink) forget() {
	l.t.mu.Lock()
	if l.t.links[l.id] == l {
		delete(l.t.links, l.id)
	}
	l.t.mu.Unlock()
}

func (l *bleLink) dropped() {
	l.once.Do(func() {
		l.forget()
		if l.onDisconnect != nil {
			go l.onDisconnect()
		}
	})
}

func (l *bleLink) characteristic(service, characteristic bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	services, err := l.dev.DiscoverServices([]bluetooth.UUID{service})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%s: service %s: %w", l.id, service, ErrServiceNotFound)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{characteristic})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%s: characteristic %s: %w", l.id, characteristic, ErrServiceNotFound)
	}
	return chars[0], nil
}

func (l *bleLink) Discover(_ context.Context, service, characteristic string) (Stream, error) {
	svc, err := bluetooth.ParseUUID(service)
	if err != nil {
		return nil, fmt.Errorf("service uuid %q: %w", service, err)
	}
	chr, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return nil, fmt.Errorf("characteristic uuid %q: %w", characteristic, err)
	}
	c, err := l.characteristic(svc, chr)
	if err != nil {
		return nil, err
	}
	return &bleStream{char: c}, nil
}

func (l *bleLink) BatteryLevel(context.Context) (int, error) {
	c, err := l.characteristic(bluetooth.ServiceUUIDBattery, bluetooth.CharacteristicUUIDBatteryLevel)
	if err != nil {
		return 0, ErrNoBattery
	}
	buf := make([]byte, 1)
	n, err := c.Read(buf)
	if err != nil || n < 1 {
		return 0, ErrNoBattery
	}
	return int(buf[0]), nil
}

func (l *bleLink) Close() error {
	l.once.Do(l.forget)
	return l.dev.Disconnect()
}

type bleStream struct {
	char bluetooth.DeviceCharacteristic
}

// CanNotify is optimistic; the adapter rejects EnableNotifications on a
// characteristic without the notify property.
func (s *bleStream) CanNotify() bool { return true }

func (s *bleStream) Start(onFrame func([]byte)) error {
	if err := s.char.EnableNotifications(func(buf []byte) {
		onFrame(append([]byte(nil), buf...))
	}); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}

func (s *bleStream) Stop() error {
	return s.char.EnableNotifications(nil)
}
