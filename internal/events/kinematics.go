package events

import (
	"strconv"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/orientation"
)

const standardGravity = 9.80665

// LatestReader gives the newest measurement of a slot (the device registry).
type LatestReader interface {
	Latest(id device.SlotID) (imu.Measurement, bool)
}

// SpeedReader gives the current ground speed in m/s (the GPS receiver).
type SpeedReader interface {
	Speed() (float64, bool)
}

// Kinematics derives joint angles and run metrics from the latest sensor
// readings at the moment an event is recorded. Nil fields, or slots
// without data, yield Missing.
type Kinematics struct {
	Sensors LatestReader
	Speed   SpeedReader
}

type side int

const (
	left side = iota
	right
)

func (s side) thigh() device.SlotID {
	if s == left {
		return device.LeftThigh
	}
	return device.RightThigh
}

func (s side) shin() device.SlotID {
	if s == left {
		return device.LeftShin
	}
	return device.RightShin
}

func (k *Kinematics) latest(id device.SlotID) (imu.Measurement, bool) {
	if k == nil || k.Sensors == nil {
		return imu.Measurement{}, false
	}
	return k.Sensors.Latest(id)
}

func (k *Kinematics) kneeFlexion(s side) string {
	thigh, ok1 := k.latest(s.thigh())
	shin, ok2 := k.latest(s.shin())
	if !ok1 || !ok2 {
		return Missing
	}
	return angle(orientation.KneeFlexion(thigh, shin))
}

func (k *Kinematics) hipFlexion(s side) string {
	thigh, ok := k.latest(s.thigh())
	if !ok {
		return Missing
	}
	return angle(orientation.HipFlexion(thigh))
}

func (k *Kinematics) hipAngle(s side) string {
	thigh, ok := k.latest(s.thigh())
	if !ok {
		// fall back to the other leg
		if thigh, ok = k.latest((1 - s).thigh()); !ok {
			return Missing
		}
	}
	return angle(orientation.HipAngle(thigh))
}

func (k *Kinematics) acceleration(s side) string {
	shin, ok := k.latest(s.shin())
	if !ok {
		if shin, ok = k.latest((1 - s).shin()); !ok {
			return Missing
		}
	}
	return decimal(orientation.LinearAccel(shin) * standardGravity)
}

func (k *Kinematics) velocity() string {
	if k == nil || k.Speed == nil {
		return Missing
	}
	v, ok := k.Speed.Speed()
	if !ok {
		return Missing
	}
	return decimal(v)
}

// angle renders whole degrees, like the historical exports.
func angle(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
