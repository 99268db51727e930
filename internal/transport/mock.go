// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/orientation"
)

// Mock is an in-process transport with four synthetic sensors. Tests use
// its knobs to force selection outcomes, connect failures and drop-outs;
// the capture service uses Run to feed it frames without hardware.
type Mock struct {
	Picker Picker

	// Unavailable, when set, is returned by Available.
	Unavailable error
	// ConnectGate, when non-nil, makes Connect wait for a receive (or ctx).
	ConnectGate chan struct{}
	// StreamStarted, when non-nil, runs right after a stream is started,
	// like a sensor that notifies as soon as it is subscribed.
	StreamStarted func(id string)

	mu         sync.Mutex
	devices    []DeviceHandle
	sources    map[string]orientation.Source
	forced     map[device.SlotID]Selection
	connectErr map[string]error
	noNotify   map[string]bool
	battery    map[string]int
	links      map[string]*mockLink
	requests   int
}

// NewMock creates the four built-in devices "mock-left_thigh" etc. and
// selects them through picker. A nil picker binds every slot to its own
// built-in device.
func NewMock(picker Picker) *Mock {
	if picker == nil {
		pinned := make(PinnedPicker)
		for _, s := range device.Slots {
			pinned[s.ID] = MockDeviceID(s.ID)
		}
		picker = pinned
	}
	t := &Mock{
		Picker:     picker,
		sources:    make(map[string]orientation.Source),
		forced:     make(map[device.SlotID]Selection),
		connectErr: make(map[string]error),
		noNotify:   make(map[string]bool),
		battery:    make(map[string]int),
		links:      make(map[string]*mockLink),
	}
	for i, s := range device.Slots {
		id := MockDeviceID(s.ID)
		t.devices = append(t.devices, NewHandle(id, "Mock "+s.Name))
		// thigh and shin of one leg swing in opposite phase
		phase := float64(i/2)*math.Pi/2 + float64(i%2)*math.Pi
		t.sources[id] = orientation.NewMockSource(40, phase)
		t.battery[id] = 90 - 5*i
	}
	return t
}

// MockDeviceID returns the built-in device id normally picked for slot.
func MockDeviceID(slot device.SlotID) string { return "mock-" + string(slot) }

func (t *Mock) Available() error { return t.Unavailable }

func (t *Mock) RequestDevice(ctx context.Context, slot device.SlotID) Selection {
	t.mu.Lock()
	t.requests++
	forced, ok := t.forced[slot]
	candidates := append([]DeviceHandle(nil), t.devices...)
	t.mu.Unlock()
	if ok {
		return forced
	}
	return t.Picker.Pick(ctx, slot, candidates)
}

// ForceSelection makes every RequestDevice for slot return sel.
func (t *Mock) ForceSelection(slot device.SlotID, sel Selection) {
	t.mu.Lock()
	t.forced[slot] = sel
	t.mu.Unlock()
}

// FailConnect makes Connect to id fail with err (nil clears it).
func (t *Mock) FailConnect(id string, err error) {
	t.mu.Lock()
	t.connectErr[id] = err
	t.mu.Unlock()
}

// DisableNotify makes id's characteristic non-notifying.
func (t *Mock) DisableNotify(id string) {
	t.mu.Lock()
	t.noNotify[id] = true
	t.mu.Unlock()
}

// SetBattery sets id's battery level; negative means not reported.
func (t *Mock) SetBattery(id string, level int) {
	t.mu.Lock()
	t.battery[id] = level
	t.mu.Unlock()
}

// Requests counts RequestDevice calls.
func (t *Mock) Requests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests
}

// Connected reports whether a link to id is open.
func (t *Mock) Connected(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.links[id]
	return ok
}

func (t *Mock) Connect(ctx context.Context, dev DeviceHandle, onDisconnect func()) (Link, error) {
	if t.ConnectGate != nil {
		select {
		case <-t.ConnectGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectErr[dev.ID()]; err != nil {
		return nil, err
	}
	l := &mockLink{t: t, id: dev.ID(), onDisconnect: onDisconnect}
	t.links[dev.ID()] = l
	return l, nil
}

// Drop simulates the device going out of range.
func (t *Mock) Drop(id string) bool {
	t.mu.Lock()
	l, ok := t.links[id]
	if ok {
		delete(t.links, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if l.onDisconnect != nil {
		l.onDisconnect()
	}
	return true
}

// Emit delivers one raw frame as if id had notified it. It reports false
// when id has no started stream.
func (t *Mock) Emit(id string, frame []byte) bool {
	t.mu.Lock()
	l, ok := t.links[id]
	var fn func([]byte)
	if ok && l.stream != nil {
		fn = l.stream.handler
	}
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(frame)
	return true
}

// Run emits one synthetic frame per started stream every interval until
// ctx is done.
func (t *Mock) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		ids := make([]string, 0, len(t.links))
		for id, l := range t.links {
			if l.stream != nil && l.stream.handler != nil {
				ids = append(ids, id)
			}
		}
		t.mu.Unlock()

		for _, id := range ids {
			pose, err := t.sources[id].Next()
			if err != nil {
				continue
			}
			t.Emit(id, []byte(imu.Format(pose.Measurement(), -1)))
		}
	}
}

type mockLink struct {
	t            *Mock
	id           string
	onDisconnect func()
	stream       *mockStream
}

func (l *mockLink) Discover(_ context.Context, service, characteristic string) (Stream, error) {
	if !strings.EqualFold(service, DefaultServiceUUID) || !strings.EqualFold(characteristic, DefaultCharacteristicUUID) {
		return nil, fmt.Errorf("%s: %w", l.id, ErrServiceNotFound)
	}
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	l.stream = &mockStream{link: l, notify: !l.t.noNotify[l.id]}
	return l.stream, nil
}

func (l *mockLink) BatteryLevel(context.Context) (int, error) {
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	level, ok := l.t.battery[l.id]
	if !ok || level < 0 {
		return 0, ErrNoBattery
	}
	return level, nil
}

func (l *mockLink) Close() error {
	l.t.mu.Lock()
	if l.t.links[l.id] == l {
		delete(l.t.links, l.id)
	}
	l.t.mu.Unlock()
	return nil
}

type mockStream struct {
	link    *mockLink
	notify  bool
	handler func([]byte)
}

func (s *mockStream) CanNotify() bool { return s.notify }

func (s *mockStream) Start(onFrame func([]byte)) error {
	if !s.notify {
		return fmt.Errorf("%s: characteristic does not notify", s.link.id)
	}
	s.link.t.mu.Lock()
	s.handler = onFrame
	s.link.t.mu.Unlock()
	if fn := s.link.t.StreamStarted; fn != nil {
		fn(s.link.id)
	}
	return nil
}

func (s *mockStream) Stop() error {
	s.link.t.mu.Lock()
	s.handler = nil
	s.link.t.mu.Unlock()
	return nil
}
