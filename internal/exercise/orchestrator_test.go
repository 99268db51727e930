package exercise

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/events"
	"github.com/relabs-tech/motion_assessment/internal/recording"
	"github.com/relabs-tech/motion_assessment/internal/upload"
)

type fakeSession struct {
	recording bool
	samples   []recording.Sample
	cleared   int
}

func (s *fakeSession) Start(time.Time) { s.recording = true; s.samples = nil }

func (s *fakeSession) Stop() []recording.Sample {
	s.recording = false
	return s.samples
}

func (s *fakeSession) Clear() { s.cleared++; s.samples = nil }

type fakeUploader struct {
	mu    sync.Mutex
	files []upload.File
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, f upload.File) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.files = append(u.files, f)
	return nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time            { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeSession, *fakeUploader, *testClock) {
	t.Helper()
	sess := &fakeSession{}
	up := &fakeUploader{}
	clk := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	o, err := New(DefaultCatalog(), events.NewLog(nil), sess, Options{Uploader: up, Now: clk.now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o.SetSubject(Subject{CustomerID: "c1", TestID: "t1"})
	return o, sess, up, clk
}

func finishMobility(t *testing.T, o *Orchestrator) {
	t.Helper()
	for _, id := range []string{"knee_flexion", "lunge_stretch", "knee_to_wall"} {
		if err := o.Start(id); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		if _, err := o.Skip(context.Background()); err != nil {
			t.Fatalf("skip %s: %v", id, err)
		}
	}
}

func TestCategoryGating(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	if err := o.Start("squats"); !errors.Is(err, ErrCategoryLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	finishMobility(t, o)
	if !o.CategoryComplete("mobility") {
		t.Fatal("mobility should be complete")
	}
	if err := o.Start("squats"); err != nil {
		t.Fatalf("start squats: %v", err)
	}
	for _, row := range o.Overview() {
		if row.Category == "endurance" && !row.Locked {
			t.Fatalf("%s should be locked", row.ID)
		}
		if row.Category == "strength" && row.Locked {
			t.Fatalf("%s should be unlocked", row.ID)
		}
	}
}

func TestOneActiveExercise(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	if err := o.Start("knee_flexion"); err != nil {
		t.Fatal(err)
	}
	if err := o.Start("lunge_stretch"); !errors.Is(err, ErrExerciseActive) {
		t.Fatalf("expected active error, got %v", err)
	}
	if err := o.Start("nope"); !errors.Is(err, ErrUnknownExercise) {
		t.Fatalf("expected unknown, got %v", err)
	}
}

func TestRecordActionUsesTimer(t *testing.T) {
	o, _, _, clk := newTestOrchestrator(t)
	if _, err := o.RecordAction("Rep Began", ""); !errors.Is(err, ErrNoActiveExercise) {
		t.Fatalf("expected no active, got %v", err)
	}
	o.Start("knee_flexion")
	clk.advance(3 * time.Second)
	if _, err := o.SelectLeg("left"); err != nil {
		t.Fatal(err)
	}
	clk.advance(2 * time.Second)
	e, err := o.RecordAction("Rep Began", "")
	if err != nil {
		t.Fatal(err)
	}
	if e.Elapsed != 5*time.Second || e.Leg != "left" {
		t.Fatalf("event = %+v", e)
	}
	if _, err := o.RecordAction("Full Squat", ""); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected unknown action, got %v", err)
	}
	if _, err := o.SelectLeg("middle"); !errors.Is(err, ErrInvalidLeg) {
		t.Fatalf("expected invalid leg, got %v", err)
	}
	evs := o.Events("knee_flexion")
	if len(evs) != 2 || evs[0].Action != "Selected left Leg" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestTimerControlRecordsEvents(t *testing.T) {
	o, _, _, clk := newTestOrchestrator(t)
	if err := o.Start("knee_flexion"); err != nil {
		t.Fatal(err)
	}
	clk.advance(4 * time.Second)
	o.PauseTimer()
	o.PauseTimer()
	clk.advance(10 * time.Second)
	o.ResumeTimer()
	clk.advance(time.Second)
	if got := o.Elapsed(); got != 5*time.Second {
		t.Fatalf("elapsed = %v", got)
	}
	o.ResetTimer()
	var actions []string
	for _, e := range o.Events("knee_flexion") {
		actions = append(actions, e.Action)
	}
	want := []string{"Timer Paused", "Timer Resumed", "Timer Reset"}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v", actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("actions = %v", actions)
		}
	}
}

func TestCompleteUploadsAllFiles(t *testing.T) {
	o, sess, up, _ := newTestOrchestrator(t)
	o.Start("knee_flexion")
	sess.samples = []recording.Sample{{Index: 0}, {ElapsedMS: 10, Index: 1}}
	o.RecordAction("Rep Began", "left")

	res, err := o.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Samples != 2 || len(res.Files) != 5 || len(up.files) != 5 {
		t.Fatalf("result %+v, uploaded %d", res, len(up.files))
	}
	if up.files[0].FileName != "knee_flexion/actions.csv" || up.files[0].CustomerID != "c1" {
		t.Fatalf("first upload = %+v", up.files[0])
	}
	if o.Status("knee_flexion") != Completed || o.Active() != "" {
		t.Fatal("exercise should be completed and inactive")
	}
	if len(o.Samples("knee_flexion")) != 2 {
		t.Fatal("samples should be kept")
	}
}

func TestActionsAfterCompleteAreRejected(t *testing.T) {
	o, _, up, _ := newTestOrchestrator(t)
	if err := o.Start("knee_flexion"); err != nil {
		t.Fatal(err)
	}

	var recorded atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := o.RecordAction("Rep Began", "left"); err != nil {
				if !errors.Is(err, ErrNoActiveExercise) {
					t.Errorf("record: %v", err)
				}
				return
			}
			recorded.Add(1)
		}
	}()
	if _, err := o.Complete(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-done

	evs := o.Events("knee_flexion")
	if int(recorded.Load()) != len(evs) {
		t.Fatalf("recorded %d actions, log holds %d", recorded.Load(), len(evs))
	}
	up.mu.Lock()
	exported := strings.Count(up.files[0].CSVContent, "\n") - 1
	up.mu.Unlock()
	if exported != len(evs) {
		t.Fatalf("exported %d events, log holds %d", exported, len(evs))
	}
}

func TestSkipUploadsEventsOnly(t *testing.T) {
	o, sess, up, _ := newTestOrchestrator(t)
	o.Start("knee_flexion")
	sess.samples = []recording.Sample{{Index: 0}}
	res, err := o.Skip(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 1 || len(up.files) != 1 {
		t.Fatalf("files = %d, uploaded %d", len(res.Files), len(up.files))
	}
	evs := o.Events("knee_flexion")
	if len(evs) != 1 || evs[0].Action != events.ActionSkipped {
		t.Fatalf("events = %+v", evs)
	}
	if o.Status("knee_flexion") != Skipped || len(o.Samples("knee_flexion")) != 0 {
		t.Fatal("skip should discard samples")
	}
}

func TestUploadFailureKeepsState(t *testing.T) {
	o, sess, up, _ := newTestOrchestrator(t)
	up.err = errors.New("offline")
	o.Start("knee_flexion")
	sess.samples = []recording.Sample{{Index: 0}}
	if _, err := o.Complete(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if o.Status("knee_flexion") != Completed {
		t.Fatal("exercise should stay completed")
	}
	up.err = nil
	if err := o.Upload(context.Background(), "knee_flexion"); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if len(up.files) != 5 {
		t.Fatalf("uploaded %d", len(up.files))
	}
}

func TestMissingSubject(t *testing.T) {
	o, _, up, _ := newTestOrchestrator(t)
	o.SetSubject(Subject{})
	o.Start("knee_flexion")
	if _, err := o.Complete(context.Background()); !errors.Is(err, upload.ErrNoSubject) {
		t.Fatalf("expected no subject, got %v", err)
	}
	if len(up.files) != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestRetry(t *testing.T) {
	o, sess, _, _ := newTestOrchestrator(t)
	if err := o.Retry("knee_flexion", true); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
	o.Start("knee_flexion")
	sess.samples = []recording.Sample{{Index: 0}}
	o.RecordAction("Rep Began", "")
	o.Complete(context.Background())

	if err := o.Retry("knee_flexion", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected confirmation, got %v", err)
	}
	o.Start("lunge_stretch")
	if err := o.Retry("knee_flexion", true); !errors.Is(err, ErrExerciseActive) {
		t.Fatalf("expected active, got %v", err)
	}
	o.Skip(context.Background())

	if err := o.Retry("knee_flexion", true); err != nil {
		t.Fatal(err)
	}
	if o.Status("knee_flexion") != NotStarted || len(o.Events("knee_flexion")) != 0 || len(o.Samples("knee_flexion")) != 0 {
		t.Fatal("retry should clear the exercise")
	}
	if err := o.Start("knee_flexion"); err != nil {
		t.Fatalf("restart after retry: %v", err)
	}
}

func TestStartFinishedExercise(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.Start("knee_flexion")
	o.Skip(context.Background())
	if err := o.Start("knee_flexion"); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected already finished, got %v", err)
	}
	if _, err := o.Files("lunge_stretch"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
}
