// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package events keeps the operator-triggered event log of each exercise
// and knows how every exercise family fills in and exports its rows.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Log is the append-only per-exercise event log.
type Log struct {
	kin *Kinematics

	mu         sync.Mutex
	bindings   map[string]string
	byExercise map[string][]Event
	currentLeg string
}

// NewLog returns an empty log deriving angles from kin (which may be nil).
func NewLog(kin *Kinematics) *Log {
	l := &Log{
		kin:        kin,
		bindings:   make(map[string]string, len(DefaultTemplates)),
		byExercise: make(map[string][]Event),
	}
	for id, t := range DefaultTemplates {
		l.bindings[id] = t
	}
	return l
}

// Bind sets the template used for exerciseID.
func (l *Log) Bind(exerciseID, template string) error {
	if !HasTemplate(template) {
		return fmt.Errorf("events: unknown template %q for %s", template, exerciseID)
	}
	l.mu.Lock()
	l.bindings[exerciseID] = template
	l.mu.Unlock()
	return nil
}

// Template returns the template bound to exerciseID, "generic" if none.
func (l *Log) Template(exerciseID string) *Template {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LookupTemplate(l.bindings[exerciseID])
}

// SetCurrentLeg sets the leg assumed for events recorded without one.
// An empty string clears it.
func (l *Log) SetCurrentLeg(leg string) {
	l.mu.Lock()
	l.currentLeg = leg
	l.mu.Unlock()
}

// CurrentLeg returns the leg set with SetCurrentLeg.
func (l *Log) CurrentLeg() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLeg
}

// RecordAction appends one event for exerciseID at elapsed time into the
// attempt. leg may be empty to use the current leg.
//
// The rep count of a normal event is the number of earlier end actions
// (Rep Ended, Hold Ended, Sprint Ended) of the same exercise plus one, so
// it names the rep in progress. "Exercise Skipped" writes the template's
// zero-filled sentinel row instead.
func (l *Log) RecordAction(action, exerciseID string, elapsed time.Duration, leg string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := LookupTemplate(l.bindings[exerciseID])
	e := Event{
		Timestamp:  FormatClock(elapsed),
		Elapsed:    elapsed,
		Action:     action,
		Leg:        firstNonEmpty(leg, l.currentLeg, LegNone),
		ExerciseID: exerciseID,
	}

	if action == ActionSkipped {
		e.Skipped = true
		e.PhaseLabel = "Skipped"
		e.RepCount = 0
		t.skip(&e)
	} else {
		t.derive(&e, input{
			kin:        l.kin,
			action:     action,
			leg:        leg,
			currentLeg: l.currentLeg,
			seconds:    int(elapsed / time.Second),
			reps:       l.repCount(exerciseID),
		})
	}

	l.byExercise[exerciseID] = append(l.byExercise[exerciseID], e)
	return e
}

func (l *Log) repCount(exerciseID string) int {
	n := 0
	for _, e := range l.byExercise[exerciseID] {
		if !e.Skipped && endActions[e.Action] {
			n++
		}
	}
	return n + 1
}

// Events returns a copy of exerciseID's events in recording order.
func (l *Log) Events(exerciseID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.byExercise[exerciseID]...)
}

// Exercises lists the exercise ids that have at least one event.
func (l *Log) Exercises() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.byExercise))
	for id, evs := range l.byExercise {
		if len(evs) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Clear drops every event of exerciseID (retry).
func (l *Log) Clear(exerciseID string) {
	l.mu.Lock()
	delete(l.byExercise, exerciseID)
	l.mu.Unlock()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
