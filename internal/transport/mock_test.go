package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
)

func TestMockConnectStreamAndDrop(t *testing.T) {
	tr := NewMock(nil)
	ctx := context.Background()

	sel := tr.RequestDevice(ctx, device.LeftThigh)
	if sel.Outcome != Selected || sel.Device.ID() != MockDeviceID(device.LeftThigh) {
		t.Fatalf("selection: %+v", sel)
	}

	var drops atomic.Int32
	link, err := tr.Connect(ctx, sel.Device, func() { drops.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	stream, err := link.Discover(ctx, DefaultServiceUUID, DefaultCharacteristicUUID)
	if err != nil {
		t.Fatal(err)
	}
	frames := make(chan []byte, 1)
	if err := stream.Start(func(b []byte) { frames <- b }); err != nil {
		t.Fatal(err)
	}
	if !tr.Emit(sel.Device.ID(), []byte("AX: 1")) {
		t.Fatal("emit failed")
	}
	if got := string(<-frames); got != "AX: 1" {
		t.Fatalf("frame %q", got)
	}

	if !tr.Drop(sel.Device.ID()) || drops.Load() != 1 {
		t.Fatalf("drop not delivered")
	}
	if tr.Connected(sel.Device.ID()) {
		t.Fatal("still connected after drop")
	}
}

func TestMockCloseIsNotADrop(t *testing.T) {
	tr := NewMock(nil)
	ctx := context.Background()
	sel := tr.RequestDevice(ctx, device.RightShin)
	called := false
	link, err := tr.Connect(ctx, sel.Device, func() { called = true })
	if err != nil {
		t.Fatal(err)
	}
	link.Close()
	if tr.Drop(sel.Device.ID()) || called {
		t.Fatal("closed link must not report a drop")
	}
}

func TestMockDiscoverWrongService(t *testing.T) {
	tr := NewMock(nil)
	ctx := context.Background()
	sel := tr.RequestDevice(ctx, device.LeftShin)
	link, _ := tr.Connect(ctx, sel.Device, nil)
	if _, err := link.Discover(ctx, "0000180f-0000-1000-8000-00805f9b34fb", DefaultCharacteristicUUID); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestMockRunEmitsDecodableFrames(t *testing.T) {
	tr := NewMock(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sel := tr.RequestDevice(ctx, device.LeftThigh)
	link, _ := tr.Connect(ctx, sel.Device, nil)
	stream, _ := link.Discover(ctx, DefaultServiceUUID, DefaultCharacteristicUUID)
	frames := make(chan []byte, 16)
	stream.Start(func(b []byte) {
		select {
		case frames <- b:
		default:
		}
	})

	go tr.Run(ctx, 5*time.Millisecond)

	select {
	case b := <-frames:
		if imu.Decode(string(b)).Measurement == nil {
			t.Fatalf("undecodable frame %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame emitted")
	}
}
