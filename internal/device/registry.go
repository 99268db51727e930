// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/motion_assessment/internal/imu"
)

// SlotID names one of the fixed anatomical sensor positions.
type SlotID string

const (
	LeftThigh  SlotID = "left_thigh"
	LeftShin   SlotID = "left_shin"
	RightThigh SlotID = "right_thigh"
	RightShin  SlotID = "right_shin"
)

// NumSlots is the number of fixed sensor positions.
const NumSlots = 4

// Slot is the static description of a sensor position.
type Slot struct {
	ID   SlotID `json:"id"`
	Name string `json:"name"`
}

// Slots lists the sensor positions in column/index order.
var Slots = [NumSlots]Slot{
	{ID: LeftThigh, Name: "Left Thigh (Upper)"},
	{ID: LeftShin, Name: "Left Shin (Lower)"},
	{ID: RightThigh, Name: "Right Thigh (Upper)"},
	{ID: RightShin, Name: "Right Shin (Lower)"},
}

// Index returns the position of id in Slots.
func Index(id SlotID) (int, bool) {
	for i, s := range Slots {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ParseSlot validates a slot name coming from config or an API call.
func ParseSlot(name string) (SlotID, error) {
	id := SlotID(name)
	if _, ok := Index(id); !ok {
		return "", fmt.Errorf("unknown sensor slot %q", name)
	}
	return id, nil
}

// State is the connection lifecycle of a slot.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Connecting, Connected, Error} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown slot state %q", b)
}

// Status is a point-in-time copy of a slot's mutable fields.
type Status struct {
	Slot
	State   State            `json:"state"`
	Device  string           `json:"device,omitempty"`
	Battery *int             `json:"battery,omitempty"`
	Error   string           `json:"error,omitempty"`
	Latest  *imu.Measurement `json:"latest,omitempty"`
}

type slotState struct {
	state   State
	device  string
	battery int // -1 = unknown
	err     string
}

// Registry owns the mutable state of the four sensor slots.
//
// Lifecycle fields are guarded by mu. Latest measurements live in atomic
// pointers so that the aggregator can snapshot all four slots without taking
// any lock while sensor callbacks keep writing.
type Registry struct {
	mu        sync.RWMutex
	slots     [NumSlots]slotState
	latest    [NumSlots]atomic.Pointer[imu.Measurement]
	listeners []func(Status)
}

// NewRegistry returns a registry with every slot idle.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.slots {
		r.slots[i].battery = -1
	}
	return r
}

// OnChange registers fn to be called after every lifecycle change.
// fn runs on the goroutine that made the change and must not block.
func (r *Registry) OnChange(fn func(Status)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// BeginConnect moves a slot to Connecting unless it is already connecting
// or connected. It is the single in-flight guard for connect attempts.
func (r *Registry) BeginConnect(id SlotID) bool {
	i := mustIndex(id)
	r.mu.Lock()
	s := &r.slots[i]
	if s.state == Connecting || s.state == Connected {
		r.mu.Unlock()
		return false
	}
	s.state = Connecting
	s.err = ""
	r.mu.Unlock()
	r.notify(id)
	return true
}

// MarkConnected records a successful connection to the named device.
func (r *Registry) MarkConnected(id SlotID, deviceName string) {
	i := mustIndex(id)
	r.mu.Lock()
	r.slots[i].state = Connected
	r.slots[i].device = deviceName
	r.slots[i].err = ""
	r.mu.Unlock()
	r.notify(id)
}

// MarkFailed moves a slot to Error with a human readable reason.
func (r *Registry) MarkFailed(id SlotID, reason string) {
	i := mustIndex(id)
	r.mu.Lock()
	r.slots[i].state = Error
	r.slots[i].err = reason
	r.mu.Unlock()
	r.latest[i].Store(nil)
	r.notify(id)
}

// Reset returns a slot to Idle and forgets its latest measurement and
// battery level.
func (r *Registry) Reset(id SlotID) {
	i := mustIndex(id)
	r.mu.Lock()
	r.slots[i] = slotState{state: Idle, battery: -1}
	r.mu.Unlock()
	r.latest[i].Store(nil)
	r.notify(id)
}

// SetBattery stores a best-effort battery level (0-100).
func (r *Registry) SetBattery(id SlotID, level int) {
	i := mustIndex(id)
	r.mu.Lock()
	changed := r.slots[i].battery != level
	r.slots[i].battery = level
	r.mu.Unlock()
	if changed {
		r.notify(id)
	}
}

// SetLatest swaps in the newest decoded measurement for a slot.
func (r *Registry) SetLatest(id SlotID, m imu.Measurement) {
	r.latest[mustIndex(id)].Store(&m)
}

// Latest returns the newest measurement for a slot, if any.
func (r *Registry) Latest(id SlotID) (imu.Measurement, bool) {
	p := r.latest[mustIndex(id)].Load()
	if p == nil {
		return imu.Measurement{}, false
	}
	return *p, true
}

// Snapshot reads the latest measurement of every slot. Slots that have
// never reported, or were reset, contribute the zero Measurement.
func (r *Registry) Snapshot() [NumSlots]imu.Measurement {
	var out [NumSlots]imu.Measurement
	for i := range r.latest {
		if p := r.latest[i].Load(); p != nil {
			out[i] = *p
		}
	}
	return out
}

// State returns the lifecycle state of a slot.
func (r *Registry) State(id SlotID) State {
	i := mustIndex(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[i].state
}

// Status returns a copy of one slot.
func (r *Registry) Status(id SlotID) Status {
	i := mustIndex(id)
	r.mu.RLock()
	s := r.slots[i]
	r.mu.RUnlock()

	st := Status{Slot: Slots[i], State: s.state, Device: s.device, Error: s.err}
	if s.battery >= 0 {
		b := s.battery
		st.Battery = &b
	}
	if m, ok := r.Latest(id); ok {
		st.Latest = &m
	}
	return st
}

// Statuses returns a copy of every slot in index order.
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, NumSlots)
	for _, s := range Slots {
		out = append(out, r.Status(s.ID))
	}
	return out
}

// AnyConnected reports whether at least one slot is connected.
func (r *Registry) AnyConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		if s.state == Connected {
			return true
		}
	}
	return false
}

func (r *Registry) notify(id SlotID) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	st := r.Status(id)
	for _, fn := range listeners {
		fn(st)
	}
}

func mustIndex(id SlotID) int {
	i, ok := Index(id)
	if !ok {
		panic(fmt.Sprintf("device: unknown slot %q", id))
	}
	return i
}
