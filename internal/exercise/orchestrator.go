// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package exercise runs the assessment flow: category gating, one active
// exercise at a time, its recording window and event log, and export of
// the finished attempt.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/events"
	"github.com/relabs-tech/motion_assessment/internal/export"
	"github.com/relabs-tech/motion_assessment/internal/metrics"
	"github.com/relabs-tech/motion_assessment/internal/recording"
	"github.com/relabs-tech/motion_assessment/internal/upload"
)

var (
	ErrUnknownExercise      = errors.New("unknown exercise")
	ErrCategoryLocked       = errors.New("an earlier category is not finished")
	ErrExerciseActive       = errors.New("another exercise is in progress")
	ErrAlreadyFinished      = errors.New("exercise already finished; retry it first")
	ErrNoActiveExercise     = errors.New("no exercise in progress")
	ErrNotCompleted         = errors.New("exercise is not completed or skipped")
	ErrConfirmationRequired = errors.New("retry discards recorded data and must be confirmed")
	ErrUnknownAction        = errors.New("action not offered for this exercise")
	ErrInvalidLeg           = errors.New("leg must be left or right")
)

// Status of one exercise.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Completed
	Skipped
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return "skipped"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Finished reports completed or skipped; both unlock the next category.
func (s Status) Finished() bool { return s == Completed || s == Skipped }

// Session is the recording window of the active exercise.
type Session interface {
	Start(origin time.Time)
	Stop() []recording.Sample
	Clear()
}

// Subject is the customer and test the recorded data belongs to.
type Subject struct {
	CustomerID string `json:"customerId"`
	TestID     string `json:"testId"`
}

// Options configures an Orchestrator. Uploader may be nil to keep data
// local only.
type Options struct {
	Uploader upload.Uploader
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// ExerciseStatus is one row of the overview.
type ExerciseStatus struct {
	Exercise
	Category string `json:"category"`
	Status   Status `json:"status"`
	Locked   bool   `json:"locked"`
	Events   int    `json:"events"`
	Samples  int    `json:"samples"`
}

// Result describes a finished attempt.
type Result struct {
	ExerciseID string        `json:"exerciseId"`
	Status     Status        `json:"status"`
	Samples    int           `json:"samples"`
	Files      []export.File `json:"-"`
}

type Orchestrator struct {
	catalog  Catalog
	log      *events.Log
	session  Session
	uploader upload.Uploader
	metrics  *metrics.Metrics
	now      func() time.Time
	timer    *Stopwatch

	mu      sync.Mutex
	status  map[string]Status
	samples map[string][]recording.Sample
	active  string
	subject Subject
}

// New binds the catalog's templates to evlog and returns an orchestrator
// with every exercise not started.
func New(cat Catalog, evlog *events.Log, session Session, opts Options) (*Orchestrator, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for _, c := range cat.Categories {
		for _, e := range c.Exercises {
			if e.Template == "" {
				continue
			}
			if err := evlog.Bind(e.ID, e.Template); err != nil {
				return nil, err
			}
		}
	}
	return &Orchestrator{
		catalog:  cat,
		log:      evlog,
		session:  session,
		uploader: opts.Uploader,
		metrics:  opts.Metrics,
		now:      opts.Now,
		timer:    NewStopwatch(opts.Now),
		status:   make(map[string]Status),
		samples:  make(map[string][]recording.Sample),
	}, nil
}

func (o *Orchestrator) Catalog() Catalog { return o.catalog }

func (o *Orchestrator) SetSubject(s Subject) {
	o.mu.Lock()
	o.subject = s
	o.mu.Unlock()
}

func (o *Orchestrator) Subject() Subject {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subject
}

// Start makes id the active exercise and opens its recording window.
func (o *Orchestrator) Start(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ci, ok := o.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExercise, id)
	}
	if o.active != "" {
		return fmt.Errorf("%w: %s", ErrExerciseActive, o.active)
	}
	if o.status[id].Finished() {
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, id)
	}
	if locked, blocker := o.lockedLocked(ci); locked {
		return fmt.Errorf("%w: %s", ErrCategoryLocked, blocker)
	}

	o.status[id] = InProgress
	o.active = id
	o.log.SetCurrentLeg("")
	o.timer.Restart()
	o.session.Start(o.now())
	log.Printf("exercise: %s started", id)
	return nil
}

// lockedLocked reports whether category ci is gated and by which exercise.
// o.mu must be held.
func (o *Orchestrator) lockedLocked(ci int) (bool, string) {
	for _, c := range o.catalog.Categories[:ci] {
		for _, e := range c.Exercises {
			if !o.status[e.ID].Finished() {
				return true, e.ID
			}
		}
	}
	return false, ""
}

// RecordAction logs an action for the active exercise at the current
// timer value. leg may be empty.
func (o *Orchestrator) RecordAction(action, leg string) (events.Event, error) {
	// held through the append so Complete cannot finish the exercise first
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.active
	if id == "" {
		return events.Event{}, ErrNoActiveExercise
	}
	ex, _, _ := o.catalog.Lookup(id)
	if action == "" || action == events.ActionSkipped || (len(ex.Actions) > 0 && !slices.Contains(ex.Actions, action)) {
		return events.Event{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return o.log.RecordAction(action, id, o.timer.Elapsed(), leg), nil
}

// SelectLeg sets the working leg and records "Selected <leg> Leg".
func (o *Orchestrator) SelectLeg(leg string) (events.Event, error) {
	if leg != "left" && leg != "right" {
		return events.Event{}, fmt.Errorf("%w: %q", ErrInvalidLeg, leg)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.active
	if id == "" {
		return events.Event{}, ErrNoActiveExercise
	}
	o.log.SetCurrentLeg(leg)
	return o.log.RecordAction("Selected "+leg+" Leg", id, o.timer.Elapsed(), leg), nil
}

// PauseTimer, ResumeTimer and ResetTimer control the attempt timer and
// record the change. Pausing a paused timer or resuming a running one
// records nothing.
func (o *Orchestrator) PauseTimer() error {
	return o.timerAction("Timer Paused", o.timer.Pause)
}

func (o *Orchestrator) ResumeTimer() error {
	return o.timerAction("Timer Resumed", o.timer.Resume)
}

func (o *Orchestrator) ResetTimer() error {
	return o.timerAction("Timer Reset", func() bool { o.timer.Reset(); return true })
}

func (o *Orchestrator) timerAction(action string, apply func() bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.active
	if id == "" {
		return ErrNoActiveExercise
	}
	if apply() {
		o.log.RecordAction(action, id, o.timer.Elapsed(), "")
	}
	return nil
}

// Complete stops recording, keeps the samples with the exercise and
// exports and uploads the attempt. An upload error is returned with the
// result; the exercise stays completed and its data stays available.
func (o *Orchestrator) Complete(ctx context.Context) (Result, error) {
	o.mu.Lock()
	id := o.active
	if id == "" {
		o.mu.Unlock()
		return Result{}, ErrNoActiveExercise
	}
	samples := o.session.Stop()
	o.samples[id] = samples
	o.status[id] = Completed
	o.active = ""
	o.mu.Unlock()
	o.timer.Stop()

	log.Printf("exercise: %s completed with %d samples", id, len(samples))
	return o.finish(ctx, id, Completed, samples)
}

// Skip records the skip sentinel, discards the recording window and
// uploads the events table.
func (o *Orchestrator) Skip(ctx context.Context) (Result, error) {
	o.mu.Lock()
	id := o.active
	if id == "" {
		o.mu.Unlock()
		return Result{}, ErrNoActiveExercise
	}
	o.log.RecordAction(events.ActionSkipped, id, o.timer.Elapsed(), "")
	o.session.Stop()
	o.session.Clear()
	delete(o.samples, id)
	o.status[id] = Skipped
	o.active = ""
	o.mu.Unlock()
	o.timer.Stop()

	log.Printf("exercise: %s skipped", id)
	return o.finish(ctx, id, Skipped, nil)
}

func (o *Orchestrator) finish(ctx context.Context, id string, st Status, samples []recording.Sample) (Result, error) {
	files, err := export.Bundle(id, o.log.Template(id), o.log.Events(id), samples)
	res := Result{ExerciseID: id, Status: st, Samples: len(samples), Files: files}
	if err != nil {
		return res, err
	}
	return res, o.upload(ctx, files)
}

func (o *Orchestrator) upload(ctx context.Context, files []export.File) error {
	if o.uploader == nil {
		return nil
	}
	subj := o.Subject()
	if subj.CustomerID == "" || subj.TestID == "" {
		return upload.ErrNoSubject
	}
	var errs []error
	for _, f := range files {
		err := o.uploader.Upload(ctx, upload.File{
			CustomerID: subj.CustomerID,
			TestID:     subj.TestID,
			FileName:   f.Name,
			FileType:   f.Type,
			CSVContent: string(f.Content),
		})
		o.metrics.Upload(f.Type, err)
		if err != nil {
			log.Printf("exercise: upload %s failed: %v", f.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Upload re-sends the files of a finished exercise.
func (o *Orchestrator) Upload(ctx context.Context, id string) error {
	files, err := o.Files(id)
	if err != nil {
		return err
	}
	return o.upload(ctx, files)
}

// Files re-renders the export of a finished exercise.
func (o *Orchestrator) Files(id string) ([]export.File, error) {
	o.mu.Lock()
	st, known := o.status[id]
	samples := o.samples[id]
	o.mu.Unlock()
	if _, _, ok := o.catalog.Lookup(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExercise, id)
	}
	if !known || !st.Finished() {
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, id)
	}
	return export.Bundle(id, o.log.Template(id), o.log.Events(id), samples)
}

// Retry resets a finished exercise to not started and discards its events
// and samples. It is destructive, so confirm must be true.
func (o *Orchestrator) Retry(id string, confirm bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, _, ok := o.catalog.Lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExercise, id)
	}
	if !o.status[id].Finished() {
		return fmt.Errorf("%w: %s", ErrNotCompleted, id)
	}
	if !confirm {
		return ErrConfirmationRequired
	}
	if o.active != "" {
		return fmt.Errorf("%w: %s", ErrExerciseActive, o.active)
	}
	o.status[id] = NotStarted
	delete(o.samples, id)
	o.log.Clear(id)
	o.session.Clear()
	log.Printf("exercise: %s reset for retry", id)
	return nil
}

// Active returns the id of the exercise in progress, or "".
func (o *Orchestrator) Active() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Elapsed returns the attempt timer value.
func (o *Orchestrator) Elapsed() time.Duration { return o.timer.Elapsed() }

func (o *Orchestrator) Status(id string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status[id]
}

// Samples returns the samples kept for a completed exercise.
func (o *Orchestrator) Samples(id string) []recording.Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.samples[id]
}

func (o *Orchestrator) Events(id string) []events.Event { return o.log.Events(id) }

// CategoryComplete reports whether every exercise of the category is
// completed or skipped.
func (o *Orchestrator) CategoryComplete(categoryID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.catalog.Categories {
		if c.ID != categoryID {
			continue
		}
		for _, e := range c.Exercises {
			if !o.status[e.ID].Finished() {
				return false
			}
		}
		return true
	}
	return false
}

// AllComplete reports whether the whole assessment is finished.
func (o *Orchestrator) AllComplete() bool {
	for _, c := range o.catalog.Categories {
		if !o.CategoryComplete(c.ID) {
			return false
		}
	}
	return true
}

// Overview lists every exercise in catalog order.
func (o *Orchestrator) Overview() []ExerciseStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []ExerciseStatus
	for ci, c := range o.catalog.Categories {
		locked, _ := o.lockedLocked(ci)
		for _, e := range c.Exercises {
			out = append(out, ExerciseStatus{
				Exercise: e,
				Category: c.ID,
				Status:   o.status[e.ID],
				Locked:   locked,
				Events:   len(o.log.Events(e.ID)),
				Samples:  len(o.samples[e.ID]),
			})
		}
	}
	return out
}
