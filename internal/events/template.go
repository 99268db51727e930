package events

import (
	"sort"
	"strconv"
)

// Column is one events-table column: header text and how to read it off
// an Event.
type Column struct {
	Header string
	Value  func(Event) string
}

// Template describes how one family of exercises fills in its Events and
// how they are exported. Exercises refer to templates by Name.
type Template struct {
	Name    string
	Columns []Column

	derive func(e *Event, in input)
	skip   func(e *Event)
}

// Headers lists the column headers in order.
func (t *Template) Headers() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Header
	}
	return out
}

// Row renders e with the template's columns.
func (t *Template) Row(e Event) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Value(e)
	}
	return out
}

// input is what a template may use to derive fields.
type input struct {
	kin        *Kinematics
	action     string
	leg        string
	currentLeg string
	seconds    int
	reps       int
}

func (in input) on(s string) bool { return in.leg == s || in.currentLeg == s }

// lead is the working leg; left unless only right is selected.
func (in input) lead() side {
	if in.on("right") && !in.on("left") {
		return right
	}
	return left
}

var (
	colTimestamp  = Column{"Timestamp", func(e Event) string { return e.Timestamp }}
	colAction     = Column{"Action", func(e Event) string { return e.Action }}
	colLeg        = Column{"Leg", func(e Event) string { return e.Leg }}
	colLegUsed    = Column{"Leg Used", func(e Event) string { return e.Leg }}
	colPhase      = Column{"Phase Label", func(e Event) string { return e.PhaseLabel }}
	colRepCount   = Column{"Rep Count", func(e Event) string { return strconv.Itoa(e.RepCount) }}
	colReps       = Column{"Reps", func(e Event) string { return strconv.Itoa(e.Reps) }}
	colHold       = Column{"Hold Duration (s)", func(e Event) string { return strconv.Itoa(e.HoldDuration) }}
	colKneeLeft   = Column{"Knee Angle Left (°)", func(e Event) string { return e.KneeAngleLeft }}
	colKneeRight  = Column{"Knee Angle Right (°)", func(e Event) string { return e.KneeAngleRight }}
	colHipAngle   = Column{"Hip Angle (°)", func(e Event) string { return e.HipAngle }}
	colHipFlexion = Column{"Hip Flexion Angle (°)", func(e Event) string { return e.HipFlexionAngle }}
	colKneeFlexL  = Column{"Knee Flexion Angle Left (°)", func(e Event) string { return e.KneeFlexionAngleLeft }}
	colKneeFlexR  = Column{"Knee Flexion Angle Right (°)", func(e Event) string { return e.KneeFlexionAngleRight }}
	colVelocity   = Column{"Velocity (m/s)", func(e Event) string { return e.Velocity }}
	colAccel      = Column{"Acceleration (m/s²)", func(e Event) string { return e.Acceleration }}
	colStride     = Column{"Stride Length (m)", func(e Event) string { return e.StrideLength }}
	colCadence    = Column{"Cadence (steps/min)", func(e Event) string { return e.Cadence }}
)

func deriveSquat(e *Event, in input) {
	e.KneeAngleLeft = in.kin.kneeFlexion(left)
	e.KneeAngleRight = in.kin.kneeFlexion(right)
	e.HipAngle = in.kin.hipAngle(in.lead())
	e.PhaseLabel = in.action
	e.RepCount = in.reps
}

func skipSquat(e *Event) {
	e.KneeAngleLeft, e.KneeAngleRight, e.HipAngle = Missing, Missing, Missing
}

// templates is the lookup table replacing per-exercise branching.
var templates = map[string]*Template{
	"knee": {
		Name:    "knee",
		Columns: []Column{colTimestamp, colKneeLeft, colKneeRight, colLegUsed, colPhase, colRepCount},
		derive: func(e *Event, in input) {
			e.KneeAngleLeft, e.KneeAngleRight = Missing, Missing
			if in.on("left") {
				e.KneeAngleLeft = in.kin.kneeFlexion(left)
			}
			if in.on("right") {
				e.KneeAngleRight = in.kin.kneeFlexion(right)
			}
			e.PhaseLabel = in.action
			e.RepCount = in.reps
		},
		skip: func(e *Event) {
			e.KneeAngleLeft, e.KneeAngleRight = Missing, Missing
		},
	},
	"lunge_stretch": {
		Name:    "lunge_stretch",
		Columns: []Column{colTimestamp, colHipFlexion, colKneeFlexL, colKneeFlexR, colLegUsed, colPhase, colHold, colReps},
		derive: func(e *Event, in input) {
			e.HipFlexionAngle = in.kin.hipFlexion(in.lead())
			e.KneeFlexionAngleLeft = in.kin.kneeFlexion(left)
			e.KneeFlexionAngleRight = in.kin.kneeFlexion(right)
			e.PhaseLabel = in.action
			if in.action == ActionHoldEnded {
				e.HoldDuration = in.seconds
			}
			e.Reps = in.reps
			e.RepCount = in.reps
		},
		skip: func(e *Event) {
			e.HipFlexionAngle = "0"
			e.KneeFlexionAngleLeft, e.KneeFlexionAngleRight = Missing, Missing
			e.HoldDuration = 0
			e.Reps = 0
		},
	},
	"squat": {
		Name:    "squat",
		Columns: []Column{colTimestamp, colKneeLeft, colKneeRight, colHipAngle, colPhase, colRepCount},
		derive:  deriveSquat,
		skip:    skipSquat,
	},
	"lunge": {
		Name:    "lunge",
		Columns: []Column{colTimestamp, colKneeLeft, colKneeRight, colHipAngle, colLegUsed, colPhase, colRepCount},
		derive:  deriveSquat,
		skip:    skipSquat,
	},
	"plank": {
		Name:    "plank",
		Columns: []Column{colTimestamp, colHipAngle, colPhase, colHold},
		derive: func(e *Event, in input) {
			e.HipAngle = in.kin.hipAngle(left)
			e.PhaseLabel = in.action
			switch in.action {
			case ActionHoldEnded:
				e.HoldDuration = in.seconds
			case ActionHolding:
				e.HoldDuration = max(in.seconds-1, 0)
			default:
				e.HoldDuration = 1
			}
			e.RepCount = in.reps
		},
		skip: func(e *Event) {
			e.HipAngle = Missing
			e.HoldDuration = 0
		},
	},
	"run": {
		Name:    "run",
		Columns: []Column{colTimestamp, colAction, colLeg, colRepCount, colVelocity, colAccel, colStride, colCadence},
		derive: func(e *Event, in input) {
			e.Velocity = in.kin.velocity()
			e.Acceleration = in.kin.acceleration(in.lead())
			// no step detector yet
			e.StrideLength = Missing
			e.Cadence = Missing
			e.PhaseLabel = in.action
			e.RepCount = in.reps
		},
		skip: func(e *Event) {
			e.Velocity, e.Acceleration, e.StrideLength, e.Cadence = "0", "0", "0", "0"
		},
	},
	"generic": {
		Name:    "generic",
		Columns: []Column{colTimestamp, colAction, colLeg, colRepCount},
		derive: func(e *Event, in input) {
			e.RepCount = in.reps
		},
		skip: func(*Event) {},
	},
}

// DefaultTemplates maps the built-in exercises to their templates.
var DefaultTemplates = map[string]string{
	"knee_flexion":  "knee",
	"knee_to_wall":  "knee",
	"lunge_stretch": "lunge_stretch",
	"squats":        "squat",
	"lunges":        "lunge",
	"plank_hold":    "plank",
	"sprint":        "run",
	"shuttle_run":   "run",
}

// LookupTemplate returns the named template; unknown names get "generic".
func LookupTemplate(name string) *Template {
	if t, ok := templates[name]; ok {
		return t
	}
	return templates["generic"]
}

// TemplateNames lists the known template names, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for n := range templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasTemplate reports whether name is a known template.
func HasTemplate(name string) bool {
	_, ok := templates[name]
	return ok
}
