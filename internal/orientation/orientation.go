package orientation

import (
	"math"

	"github.com/relabs-tech/motion_assessment/internal/imu"
)

// Pose is the tilt of one body segment in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// FromAccel computes roll/pitch from the accelerometer axes of m.
// Yaw stays 0 until the magnetometer is fused.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay^2 + az^2))
func FromAccel(m imu.Measurement) Pose {
	return Pose{
		Roll:  deg(math.Atan2(m.AY, m.AZ)),
		Pitch: deg(math.Atan2(-m.AX, math.Sqrt(m.AY*m.AY+m.AZ*m.AZ))),
	}
}

// Gravity returns the accelerometer reading (in g) a sensor at rest in
// pose p would report. It is the inverse of FromAccel.
func (p Pose) Gravity() imu.Measurement {
	r, q := rad(p.Roll), rad(p.Pitch)
	return imu.Measurement{
		AX: -math.Sin(q),
		AY: math.Sin(r) * math.Cos(q),
		AZ: math.Cos(r) * math.Cos(q),
	}
}

// KneeFlexion is the angle between the thigh and shin segments.
func KneeFlexion(thigh, shin imu.Measurement) float64 {
	return math.Abs(FromAccel(thigh).Pitch - FromAccel(shin).Pitch)
}

// HipFlexion is the thigh's deviation from vertical.
func HipFlexion(thigh imu.Measurement) float64 {
	return math.Abs(FromAccel(thigh).Pitch)
}

// HipAngle is the included angle at the hip, 180 when standing straight.
func HipAngle(thigh imu.Measurement) float64 {
	return 180 - HipFlexion(thigh)
}

// LinearAccel returns the accelerometer magnitude with 1 g removed.
func LinearAccel(m imu.Measurement) float64 {
	return math.Sqrt(m.AX*m.AX+m.AY*m.AY+m.AZ*m.AZ) - 1
}

func deg(r float64) float64 { return r * 180.0 / math.Pi }
func rad(d float64) float64 { return d * math.Pi / 180.0 }
