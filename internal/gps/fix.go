// Package gps reads ground speed from an NMEA receiver on a serial port.
package gps

import "time"

// KnotsToMPS converts knots to metres per second.
const KnotsToMPS = 0.514444

// Fix is the last valid RMC fix.
type Fix struct {
	Time      string    `json:"time"`      // e.g. "12:34:56"
	Date      string    `json:"date"`      // e.g. "13/06/94"
	Latitude  float64   `json:"lat"`       // decimal degrees
	Longitude float64   `json:"lon"`       // decimal degrees
	SpeedMPS  float64   `json:"speed_mps"` // speed over ground
	CourseDeg float64   `json:"course_deg"`
	Received  time.Time `json:"received"`
}
