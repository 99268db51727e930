package export

import (
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/events"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/recording"
)

func TestKneeEventsTable(t *testing.T) {
	l := events.NewLog(nil)
	l.SetCurrentLeg("left")
	for i, a := range []string{"Rep Began", "Max Knee Flexion", "Rep Ended"} {
		l.RecordAction(a, "knee_flexion", time.Duration(i)*time.Second, "")
	}
	rows := EventsTable(l.Template("knee_flexion"), l.Events("knee_flexion"))
	if len(rows) != 4 {
		t.Fatalf("rows = %d", len(rows))
	}
	for _, r := range rows[1:] {
		if r[3] != "left" || r[5] != "1" {
			t.Fatalf("row %v", r)
		}
	}
	if rows[2][4] != "Max Knee Flexion" || rows[3][0] != "00:02" {
		t.Fatalf("rows %v", rows)
	}
}

func TestSensorTable(t *testing.T) {
	samples := []recording.Sample{
		{ElapsedMS: 0, Index: 0},
		{ElapsedMS: 61500, Index: 1},
	}
	samples[1].Slots[0] = imu.Measurement{AX: 0.1, MZ: -12.3456789}

	rows := SensorTable(device.LeftThigh, samples)
	if got := strings.Join(rows[0], ","); got != "Timestamp,SampleIndex,AX,AY,AZ,GX,GY,GZ,MX,MY,MZ" {
		t.Fatalf("header %s", got)
	}
	want := "01:01,1,0.100000,0.000000,0.000000,0.000000,0.000000,0.000000,0.000000,0.000000,-12.345679"
	if got := strings.Join(rows[2], ","); got != want {
		t.Fatalf("row\n got %s\nwant %s", got, want)
	}
	if rows[1][2] != "0.000000" {
		t.Fatalf("zero default not rendered: %v", rows[1])
	}
}

func TestCSVQuoting(t *testing.T) {
	b, err := CSV([][]string{{"a,b", `say "hi"`, "plain"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != "\"a,b\",\"say \"\"hi\"\"\",plain\n" {
		t.Fatalf("csv %q", got)
	}
}

func TestBundle(t *testing.T) {
	l := events.NewLog(nil)
	l.RecordAction("Full Squat", "squats", 0, "")

	files, err := Bundle("squats", l.Template("squats"), l.Events("squats"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "squats/actions.csv" || files[0].Type != TypeEvents {
		t.Fatalf("files %+v", files)
	}

	files, err = Bundle("squats", l.Template("squats"), l.Events("squats"), []recording.Sample{{}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1+device.NumSlots {
		t.Fatalf("files = %d", len(files))
	}
	if files[4].Name != "squats/sensor_data_right_shin.csv" || files[4].Type != TypeSensor {
		t.Fatalf("last file %+v", files[4])
	}
}
