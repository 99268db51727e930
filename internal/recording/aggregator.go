// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recording

import (
	"sync"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
)

// Sample is one time-aligned row of the multi-sensor stream.
type Sample struct {
	ElapsedMS int64                              `json:"timestamp"`
	Index     int                                `json:"sample_index"`
	Slots     [device.NumSlots]imu.Measurement `json:"slots"`
}

// Slot returns the measurement recorded for one slot.
func (s Sample) Slot(id device.SlotID) imu.Measurement {
	i, ok := device.Index(id)
	if !ok {
		return imu.Measurement{}
	}
	return s.Slots[i]
}

// Snapshotter provides the latest known measurement of every slot.
type Snapshotter interface {
	Snapshot() [device.NumSlots]imu.Measurement
}

// Aggregator turns independent per-slot arrivals into one ordered Sample
// stream. Every measurement that arrives while recording emits exactly one
// Sample holding the newest value of all four slots; there is no timer.
//
// It also is the recording session: Start opens the buffering window, Stop
// closes it and hands back the frozen buffer.
type Aggregator struct {
	src Snapshotter
	now func() time.Time

	mu        sync.Mutex
	recording bool
	origin    time.Time
	next      int
	buf       []Sample
	listeners []func(Sample)
}

// NewAggregator returns an idle aggregator reading slot snapshots from src.
func NewAggregator(src Snapshotter) *Aggregator {
	return &Aggregator{src: src, now: time.Now}
}

// OnSample registers fn to receive every emitted Sample. It is called
// outside the aggregator lock and must not block.
func (a *Aggregator) OnSample(fn func(Sample)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Start opens a new recording window at origin. Any previous buffer is
// dropped, also when already recording (last start wins).
func (a *Aggregator) Start(origin time.Time) {
	a.mu.Lock()
	a.recording = true
	a.origin = origin
	a.next = 0
	a.buf = nil
	a.mu.Unlock()
}

// Stop closes the window and returns the buffered samples. Calling Stop
// again without a new Start returns the same contents. The returned slice is
// never written to afterwards.
func (a *Aggregator) Stop() []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = false
	a.origin = time.Time{}
	return a.buf[:len(a.buf):len(a.buf)]
}

// Clear empties the buffer without changing the recording state. Sample
// indices keep counting until the next Start.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()
}

// Recording reports whether a window is open.
func (a *Aggregator) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}

// Len returns the number of buffered samples.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Samples returns a copy of the current buffer.
func (a *Aggregator) Samples() []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sample, len(a.buf))
	copy(out, a.buf)
	return out
}

// OnMeasurement feeds one decoded measurement for slot. Outside a recording
// window it is ignored; the caller has already stored it as the slot's
// latest value.
func (a *Aggregator) OnMeasurement(slot device.SlotID, m imu.Measurement) {
	i, ok := device.Index(slot)
	if !ok {
		return
	}

	a.mu.Lock()
	if !a.recording {
		a.mu.Unlock()
		return
	}
	s := Sample{
		ElapsedMS: a.now().Sub(a.origin).Milliseconds(),
		Index:     a.next,
	}
	if a.src != nil {
		s.Slots = a.src.Snapshot()
	}
	s.Slots[i] = m
	if n := len(a.buf); n > 0 && s.ElapsedMS < a.buf[n-1].ElapsedMS {
		// wall clock stepped back; keep elapsed time non-decreasing
		s.ElapsedMS = a.buf[n-1].ElapsedMS
	}
	a.next++
	a.buf = append(a.buf, s)
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
