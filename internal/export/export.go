// Package export renders event logs and sample buffers as CSV tables.
// Rows keep insertion order; nothing is filtered or converted.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/events"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/recording"
)

// File types used by the upload contract.
const (
	TypeEvents = "events"
	TypeSensor = "sensor"
)

// SensorHeaders are the fixed columns of every per-slot table.
var SensorHeaders = append([]string{"Timestamp", "SampleIndex"}, imu.Axes[:]...)

// File is one rendered CSV, named relative to the test's upload root.
type File struct {
	Name    string
	Type    string
	Content []byte
}

// EventsTable renders evs with t's columns. The first row is the header.
func EventsTable(t *events.Template, evs []events.Event) [][]string {
	rows := make([][]string, 0, len(evs)+1)
	rows = append(rows, t.Headers())
	for _, e := range evs {
		rows = append(rows, t.Row(e))
	}
	return rows
}

// SensorTable renders one slot's column of every sample. The first row is
// the header.
func SensorTable(slot device.SlotID, samples []recording.Sample) [][]string {
	rows := make([][]string, 0, len(samples)+1)
	rows = append(rows, SensorHeaders)
	for _, s := range samples {
		row := make([]string, 0, len(SensorHeaders))
		row = append(row,
			events.FormatClock(time.Duration(s.ElapsedMS)*time.Millisecond),
			strconv.Itoa(s.Index),
		)
		for _, v := range s.Slot(slot).Values() {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

// CSV encodes rows with standard quoting.
func CSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EventsFileName and SensorFileName name the files of one exercise.
func EventsFileName(exerciseID string) string { return exerciseID + "/actions.csv" }

func SensorFileName(exerciseID string, slot device.SlotID) string {
	return fmt.Sprintf("%s/sensor_data_%s.csv", exerciseID, slot)
}

// Bundle renders the file set of one exercise attempt: the events table
// and, when samples were captured, one table per slot.
func Bundle(exerciseID string, t *events.Template, evs []events.Event, samples []recording.Sample) ([]File, error) {
	content, err := CSV(EventsTable(t, evs))
	if err != nil {
		return nil, fmt.Errorf("%s events: %w", exerciseID, err)
	}
	files := []File{{Name: EventsFileName(exerciseID), Type: TypeEvents, Content: content}}

	if len(samples) == 0 {
		return files, nil
	}
	for _, s := range device.Slots {
		content, err := CSV(SensorTable(s.ID, samples))
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", exerciseID, s.ID, err)
		}
		files = append(files, File{Name: SensorFileName(exerciseID, s.ID), Type: TypeSensor, Content: content})
	}
	return files, nil
}
