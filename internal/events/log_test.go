package events

import (
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/orientation"
)

type fakeSensors map[device.SlotID]imu.Measurement

func (f fakeSensors) Latest(id device.SlotID) (imu.Measurement, bool) {
	m, ok := f[id]
	return m, ok
}

type fakeSpeed float64

func (f fakeSpeed) Speed() (float64, bool) { return float64(f), true }

func TestRepCountAnticipatesCurrentRep(t *testing.T) {
	l := NewLog(nil)
	var got []int
	for _, a := range []string{"Rep Began", "Rep Ended", "Rep Began"} {
		got = append(got, l.RecordAction(a, "knee_flexion", 0, "").RepCount)
	}
	if got[0] != 1 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("rep counts = %v", got)
	}
}

func TestRepCountIgnoresOtherExercisesAndSkips(t *testing.T) {
	l := NewLog(nil)
	l.RecordAction("Rep Ended", "squats", 0, "")
	l.RecordAction(ActionSkipped, "knee_flexion", 0, "")
	if e := l.RecordAction("Rep Began", "knee_flexion", 0, ""); e.RepCount != 1 {
		t.Fatalf("rep count = %d", e.RepCount)
	}
}

func TestSkipSentinelShapes(t *testing.T) {
	tests := []struct {
		exercise string
		check    func(Event) bool
	}{
		{"plank_hold", func(e Event) bool { return e.HoldDuration == 0 && e.HipAngle == Missing }},
		{"knee_to_wall", func(e Event) bool { return e.KneeAngleLeft == Missing && e.KneeAngleRight == Missing }},
		{"lunge_stretch", func(e Event) bool {
			return e.HipFlexionAngle == "0" && e.KneeFlexionAngleLeft == Missing && e.Reps == 0 && e.HoldDuration == 0
		}},
		{"squats", func(e Event) bool { return e.HipAngle == Missing && e.KneeAngleRight == Missing }},
		{"sprint", func(e Event) bool {
			return e.Velocity == "0" && e.Acceleration == "0" && e.StrideLength == "0" && e.Cadence == "0"
		}},
	}
	for _, tc := range tests {
		t.Run(tc.exercise, func(t *testing.T) {
			l := NewLog(&Kinematics{Sensors: fakeSensors{device.LeftThigh: {AZ: 1}}})
			l.RecordAction("Rep Ended", tc.exercise, 3*time.Second, "")
			e := l.RecordAction(ActionSkipped, tc.exercise, 95*time.Second, "")
			if !e.Skipped || e.PhaseLabel != "Skipped" || e.RepCount != 0 {
				t.Fatalf("not a sentinel: %+v", e)
			}
			if !tc.check(e) {
				t.Fatalf("sentinel fields wrong: %+v", e)
			}
			if e.Timestamp != "01:35" {
				t.Fatalf("timestamp = %s", e.Timestamp)
			}
		})
	}
}

func TestKneeScenarioWithLeftLeg(t *testing.T) {
	l := NewLog(nil)
	l.SetCurrentLeg("left")
	for _, a := range []string{"Rep Began", "Max Knee Flexion", "Rep Ended"} {
		e := l.RecordAction(a, "knee_flexion", 0, "")
		if e.Leg != "left" || e.RepCount != 1 || e.PhaseLabel != a {
			t.Fatalf("event %+v", e)
		}
		// no sensor data: the left side is measured but unknown, the right is not used
		if e.KneeAngleLeft != Missing || e.KneeAngleRight != Missing {
			t.Fatalf("angles %+v", e)
		}
	}
	if n := len(l.Events("knee_flexion")); n != 3 {
		t.Fatalf("events = %d", n)
	}
}

func TestLegDefaults(t *testing.T) {
	l := NewLog(nil)
	if e := l.RecordAction("Rep Began", "squats", 0, ""); e.Leg != LegNone {
		t.Fatalf("leg = %q", e.Leg)
	}
	l.SetCurrentLeg("right")
	if e := l.RecordAction("Rep Began", "squats", 0, "left"); e.Leg != "left" {
		t.Fatalf("explicit leg lost: %q", e.Leg)
	}
}

func TestAnglesComputedFromSensors(t *testing.T) {
	sensors := fakeSensors{
		device.LeftThigh: orientation.Pose{Pitch: 70}.Gravity(),
		device.LeftShin:  orientation.Pose{Pitch: -20}.Gravity(),
	}
	l := NewLog(&Kinematics{Sensors: sensors})

	e := l.RecordAction("Max Knee Flexion", "knee_flexion", 0, "left")
	if e.KneeAngleLeft != "90" || e.KneeAngleRight != Missing {
		t.Fatalf("knee: %+v", e)
	}

	e = l.RecordAction("Full Squat", "squats", 0, "")
	if e.KneeAngleLeft != "90" || e.KneeAngleRight != Missing || e.HipAngle != "110" {
		t.Fatalf("squat: %+v", e)
	}

	e = l.RecordAction("Hold Began", "lunge_stretch", 0, "left")
	if e.HipFlexionAngle != "70" {
		t.Fatalf("lunge stretch: %+v", e)
	}
}

func TestHoldDurations(t *testing.T) {
	l := NewLog(nil)
	cases := []struct {
		action string
		want   int
	}{
		{"Hold Started", 1},
		{"Holding", 29},
		{"Hold Ended", 30},
	}
	for _, c := range cases {
		if e := l.RecordAction(c.action, "plank_hold", 30*time.Second, ""); e.HoldDuration != c.want {
			t.Fatalf("%s: hold = %d", c.action, e.HoldDuration)
		}
	}
	if e := l.RecordAction("Hold Ended", "lunge_stretch", 42*time.Second, "right"); e.HoldDuration != 42 || e.Reps != 1 {
		t.Fatalf("lunge stretch hold: %+v", e)
	}
	if e := l.RecordAction("Holding", "lunge_stretch", 50*time.Second, "right"); e.HoldDuration != 0 || e.Reps != 2 {
		t.Fatalf("lunge stretch holding: %+v", e)
	}
}

func TestRunMetrics(t *testing.T) {
	sensors := fakeSensors{device.LeftShin: {AX: 0, AY: 0, AZ: 1.5}}
	l := NewLog(&Kinematics{Sensors: sensors, Speed: fakeSpeed(6.25)})
	e := l.RecordAction("Sprinting", "sprint", 4*time.Second, "")
	if e.Velocity != "6.2" && e.Velocity != "6.3" {
		t.Fatalf("velocity = %q", e.Velocity)
	}
	if e.Acceleration != "4.9" {
		t.Fatalf("acceleration = %q", e.Acceleration)
	}
	if e.StrideLength != Missing || e.Cadence != Missing {
		t.Fatalf("stride/cadence should be missing: %+v", e)
	}
}

func TestBindAndClear(t *testing.T) {
	l := NewLog(nil)
	if err := l.Bind("wall_sit", "nope"); err == nil {
		t.Fatal("expected unknown template error")
	}
	if err := l.Bind("wall_sit", "plank"); err != nil {
		t.Fatal(err)
	}
	if got := l.Template("wall_sit").Name; got != "plank" {
		t.Fatalf("template = %s", got)
	}
	if got := l.Template("unknown").Name; got != "generic" {
		t.Fatalf("fallback template = %s", got)
	}

	l.RecordAction("Rep Ended", "wall_sit", 0, "")
	l.Clear("wall_sit")
	if len(l.Events("wall_sit")) != 0 {
		t.Fatal("clear left events")
	}
	if e := l.RecordAction("Rep Began", "wall_sit", 0, ""); e.RepCount != 1 {
		t.Fatalf("count not reset: %d", e.RepCount)
	}
}

func TestTemplateHeaders(t *testing.T) {
	want := map[string]string{
		"knee":          "Timestamp,Knee Angle Left (°),Knee Angle Right (°),Leg Used,Phase Label,Rep Count",
		"lunge_stretch": "Timestamp,Hip Flexion Angle (°),Knee Flexion Angle Left (°),Knee Flexion Angle Right (°),Leg Used,Phase Label,Hold Duration (s),Reps",
		"squat":         "Timestamp,Knee Angle Left (°),Knee Angle Right (°),Hip Angle (°),Phase Label,Rep Count",
		"plank":         "Timestamp,Hip Angle (°),Phase Label,Hold Duration (s)",
		"generic":       "Timestamp,Action,Leg,Rep Count",
	}
	for name, h := range want {
		if got := strings.Join(LookupTemplate(name).Headers(), ","); got != h {
			t.Errorf("%s headers:\n got %s\nwant %s", name, got, h)
		}
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "00:00",
		59*time.Second + 999e6:  "00:59",
		61 * time.Second:        "01:01",
		100 * time.Minute:       "100:00",
		-3 * time.Second:        "00:00",
	}
	for d, want := range cases {
		if got := FormatClock(d); got != want {
			t.Errorf("FormatClock(%v) = %s want %s", d, got, want)
		}
	}
}
