// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/imu"
)

// MockSource generates a smooth periodic swing, roughly what a leg segment
// does during slow squats.
type MockSource struct {
	start     time.Time
	amplitude float64
	phase     float64
	now       func() time.Time
}

// NewMockSource creates a mock segment swinging ±amplitude degrees in pitch.
// Segments of the same leg should use opposite phases so the knee bends.
func NewMockSource(amplitude, phase float64) *MockSource {
	return &MockSource{start: time.Now(), amplitude: amplitude, phase: phase, now: time.Now}
}

func (m *MockSource) Next() (Pose, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return Pose{
		Roll:  5 * math.Sin(elapsed*0.3+m.phase),
		Pitch: m.amplitude * math.Sin(elapsed*0.8+m.phase),
		Yaw:   math.Mod(elapsed*30, 360),
	}, nil
}

// Measurement renders a pose as what a sensor at rest in that pose would
// report: gravity on the accelerometer, a slow rotation on the gyroscope and
// a field turning with yaw on the magnetometer.
func (p Pose) Measurement() imu.Measurement {
	m := p.Gravity()
	m.GX, m.GY, m.GZ = p.Roll*0.1, p.Pitch*0.1, 0
	m.MX, m.MY, m.MZ = 30*math.Cos(rad(p.Yaw)), 30*math.Sin(rad(p.Yaw)), -40
	return m
}
