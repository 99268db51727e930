package device

import (
	"sync"
	"testing"

	"github.com/relabs-tech/motion_assessment/internal/imu"
)

func TestBeginConnectGuard(t *testing.T) {
	r := NewRegistry()
	if !r.BeginConnect(LeftThigh) {
		t.Fatal("first BeginConnect should succeed")
	}
	if r.BeginConnect(LeftThigh) {
		t.Fatal("BeginConnect while connecting should be rejected")
	}
	r.MarkConnected(LeftThigh, "imu-01")
	if r.BeginConnect(LeftThigh) {
		t.Fatal("BeginConnect while connected should be rejected")
	}
	r.MarkFailed(RightShin, "boom")
	if !r.BeginConnect(RightShin) {
		t.Fatal("BeginConnect from error should be allowed")
	}
}

func TestBeginConnectConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.BeginConnect(LeftShin) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSnapshotDefaultsAndReset(t *testing.T) {
	r := NewRegistry()
	r.SetLatest(RightThigh, imu.Measurement{AX: 1})

	snap := r.Snapshot()
	i, _ := Index(RightThigh)
	for j, m := range snap {
		if j == i {
			if m.AX != 1 {
				t.Fatalf("right_thigh AX = %v", m.AX)
			}
			continue
		}
		if !m.IsZero() {
			t.Fatalf("slot %d should be zero, got %+v", j, m)
		}
	}

	r.SetBattery(RightThigh, 80)
	r.Reset(RightThigh)
	st := r.Status(RightThigh)
	if st.State != Idle || st.Latest != nil || st.Battery != nil {
		t.Fatalf("reset left state behind: %+v", st)
	}
}

func TestOnChangeListener(t *testing.T) {
	r := NewRegistry()
	var got []State
	r.OnChange(func(s Status) {
		if s.ID == LeftThigh {
			got = append(got, s.State)
		}
	})
	r.BeginConnect(LeftThigh)
	r.MarkConnected(LeftThigh, "dev")
	r.Reset(LeftThigh)

	want := []State{Connecting, Connected, Idle}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestParseSlot(t *testing.T) {
	if _, err := ParseSlot("left_shin"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseSlot("torso"); err == nil {
		t.Fatal("expected error for unknown slot")
	}
}
