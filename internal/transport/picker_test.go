package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

var candidates = []DeviceHandle{
	NewHandle("aa:01", "IMU-A"),
	NewHandle("aa:02", "IMU-B"),
}

func TestPinnedPicker(t *testing.T) {
	p := PinnedPicker{device.LeftThigh: "IMU-B", device.LeftShin: "missing"}
	ctx := context.Background()

	if sel := p.Pick(ctx, device.LeftThigh, candidates); sel.Outcome != Selected || sel.Device.ID() != "aa:02" {
		t.Fatalf("pinned by name: %+v", sel)
	}
	if sel := p.Pick(ctx, device.LeftShin, candidates); sel.Outcome != Failed || sel.Err == nil {
		t.Fatalf("missing device should fail: %+v", sel)
	}
	if sel := p.Pick(ctx, device.RightShin, candidates); sel.Outcome != Cancelled {
		t.Fatalf("unpinned slot should cancel: %+v", sel)
	}
}

func TestFirstPickerClaimsDevices(t *testing.T) {
	p := &FirstPicker{}
	ctx := context.Background()

	a := p.Pick(ctx, device.LeftThigh, candidates)
	b := p.Pick(ctx, device.LeftShin, candidates)
	c := p.Pick(ctx, device.RightThigh, candidates)
	if a.Device.ID() != "aa:01" || b.Device.ID() != "aa:02" {
		t.Fatalf("unexpected picks %v %v", a.Device.ID(), b.Device.ID())
	}
	if c.Outcome != Cancelled {
		t.Fatalf("no device left, want cancelled, got %v", c.Outcome)
	}
	// the same slot may get its own device again
	if again := p.Pick(ctx, device.LeftThigh, candidates); again.Device.ID() != "aa:01" {
		t.Fatalf("re-pick: %+v", again)
	}
}

func TestConsolePicker(t *testing.T) {
	tests := []struct {
		input string
		want  Outcome
		id    string
	}{
		{"2\n", Selected, "aa:02"},
		{"aa:01\n", Selected, "aa:01"},
		{"\n", Cancelled, ""},
		{"", Cancelled, ""},
		{"9\n", Failed, ""},
	}
	for _, tc := range tests {
		var out strings.Builder
		p := &ConsolePicker{In: bufio.NewReader(strings.NewReader(tc.input)), Out: &out}
		sel := p.Pick(context.Background(), device.LeftThigh, candidates)
		if sel.Outcome != tc.want {
			t.Fatalf("input %q: outcome %v want %v", tc.input, sel.Outcome, tc.want)
		}
		if tc.id != "" && sel.Device.ID() != tc.id {
			t.Fatalf("input %q: picked %s", tc.input, sel.Device.ID())
		}
		if !strings.Contains(out.String(), "IMU-A") {
			t.Fatalf("prompt did not list devices: %q", out.String())
		}
	}
}

// promptWriter signals each time a selection prompt has been written.
type promptWriter struct {
	mu     sync.Mutex
	buf    strings.Builder
	prompt chan struct{}
}

func (w *promptWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	if strings.Contains(string(b), "empty to skip") {
		w.prompt <- struct{}{}
	}
	return len(b), nil
}

func TestConsolePickerCancelKeepsNextAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	out := &promptWriter{prompt: make(chan struct{}, 2)}
	p := &ConsolePicker{In: bufio.NewReader(pr), Out: out}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sel := p.Pick(ctx, device.LeftThigh, candidates); sel.Outcome != Cancelled {
		t.Fatalf("cancelled pick: %+v", sel)
	}
	<-out.prompt

	result := make(chan Selection, 1)
	go func() { result <- p.Pick(context.Background(), device.LeftShin, candidates) }()
	select {
	case <-out.prompt:
	case <-time.After(time.Second):
		t.Fatal("second prompt not shown")
	}
	if _, err := io.WriteString(pw, "2\n"); err != nil {
		t.Fatal(err)
	}

	select {
	case sel := <-result:
		if sel.Outcome != Selected || sel.Device.ID() != "aa:02" {
			t.Fatalf("second pick lost its answer: %+v", sel)
		}
	case <-time.After(time.Second):
		t.Fatal("second pick never answered")
	}
}

func TestConsolePickerAfterEOF(t *testing.T) {
	var out strings.Builder
	p := &ConsolePicker{In: bufio.NewReader(strings.NewReader("1\n")), Out: &out}
	ctx := context.Background()

	if sel := p.Pick(ctx, device.LeftThigh, candidates); sel.Device.ID() != "aa:01" {
		t.Fatalf("first pick: %+v", sel)
	}
	// the reader has hit EOF; later prompts cancel instead of blocking
	for _, slot := range []device.SlotID{device.LeftShin, device.RightThigh} {
		if sel := p.Pick(ctx, slot, candidates); sel.Outcome != Cancelled {
			t.Fatalf("%s after EOF: %+v", slot, sel)
		}
	}
}

func TestNewPickerRejectsUnknown(t *testing.T) {
	if _, err := NewPicker("random", nil, strings.NewReader(""), &strings.Builder{}); err == nil {
		t.Fatal("expected error")
	}
}
