package events

import (
	"fmt"
	"time"
)

// Actions with special meaning for the log.
const (
	ActionSkipped     = "Exercise Skipped"
	ActionRepEnded    = "Rep Ended"
	ActionHoldEnded   = "Hold Ended"
	ActionHolding     = "Holding"
	ActionSprintEnded = "Sprint Ended"
)

// LegNone is recorded when neither an explicit nor a current leg is known.
const LegNone = "N/A"

// Placeholder shown for a value that could not be measured.
const Missing = "-"

// endActions close a rep, hold or sprint and advance the count.
var endActions = map[string]bool{
	ActionRepEnded:    true,
	ActionHoldEnded:   true,
	ActionSprintEnded: true,
}

// Event is one operator-triggered entry of an exercise attempt. Angle and
// run fields are pre-rendered strings; which ones are filled depends on
// the exercise's template.
type Event struct {
	Timestamp  string        `json:"timestamp"`
	Elapsed    time.Duration `json:"-"`
	Action     string        `json:"action"`
	Leg        string        `json:"leg"`
	ExerciseID string        `json:"exerciseId"`
	Skipped    bool          `json:"skipped,omitempty"`

	PhaseLabel   string `json:"phaseLabel,omitempty"`
	RepCount     int    `json:"repCount"`
	Reps         int    `json:"reps,omitempty"`
	HoldDuration int    `json:"holdDuration,omitempty"`

	KneeAngleLeft         string `json:"kneeAngleLeft,omitempty"`
	KneeAngleRight        string `json:"kneeAngleRight,omitempty"`
	HipAngle              string `json:"hipAngle,omitempty"`
	HipFlexionAngle       string `json:"hipFlexionAngle,omitempty"`
	KneeFlexionAngleLeft  string `json:"kneeFlexionAngleLeft,omitempty"`
	KneeFlexionAngleRight string `json:"kneeFlexionAngleRight,omitempty"`

	Velocity     string `json:"velocity,omitempty"`
	Acceleration string `json:"acceleration,omitempty"`
	StrideLength string `json:"strideLength,omitempty"`
	Cadence      string `json:"cadence,omitempty"`
}

// FormatClock renders whole elapsed seconds as MM:SS. Minutes are not
// capped at 59.
func FormatClock(d time.Duration) string {
	s := int(d / time.Second)
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
