package imu

import (
	"regexp"
	"strconv"
)

var (
	axisToken    = regexp.MustCompile(`([A-Z]{2}):\s*(-?\d+(?:\.\d+)?)`)
	batteryToken = regexp.MustCompile(`\bBAT(?:TERY)?:\s*(\d+)`)
)

// Frame is the result of decoding one notification payload.
//
// Measurement is nil when the frame carried no axis token at all, which lets
// callers tell a garbage or battery-only frame from a real reading with some
// axes missing. Battery is -1 when absent.
type Frame struct {
	Measurement *Measurement
	Battery     int
}

// HasBattery reports whether the frame carried a battery level.
func (f Frame) HasBattery() bool {
	return f.Battery >= 0
}

// Decode parses a text frame such as
//
//	AX: 0.12 AY: -0.98 AZ: 0.03 GX: 1.5 GY: 0 GZ: -2 MX: 31 MY: -4 MZ: 40
//
// Axes that are not present default to zero. Decode never fails.
func Decode(text string) Frame {
	f := Frame{Battery: -1}

	var m Measurement
	found := false
	for _, match := range axisToken.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		if m.set(match[1], v) {
			found = true
		}
	}
	if found {
		f.Measurement = &m
	}

	if match := batteryToken.FindStringSubmatch(text); match != nil {
		if level, err := strconv.Atoi(match[1]); err == nil {
			f.Battery = min(max(level, 0), 100)
		}
	}
	return f
}
