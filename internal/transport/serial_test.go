package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// pipePort stands in for a serial port; the test writes device output to w.
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error { return p.r.Close() }

// connectSerial opens port through the transport and starts its stream.
func connectSerial(t *testing.T, port *pipePort) (Link, chan string, chan struct{}) {
	t.Helper()
	tr := NewSerial(SerialConfig{Ports: []string{"/dev/ttyUSB0"}}, &FirstPicker{})
	var opened serial.OpenOptions
	tr.open = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
		opened = opts
		return port, nil
	}
	ctx := context.Background()

	sel := tr.RequestDevice(ctx, device.LeftThigh)
	if sel.Outcome != Selected || sel.Device.ID() != "/dev/ttyUSB0" || sel.Device.Name() != "ttyUSB0" {
		t.Fatalf("selection: %+v", sel)
	}
	drops := make(chan struct{}, 2)
	link, err := tr.Connect(ctx, sel.Device, func() { drops <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	if opened.PortName != "/dev/ttyUSB0" || opened.BaudRate != 115200 {
		t.Fatalf("open options: %+v", opened)
	}
	stream, err := link.Discover(ctx, DefaultServiceUUID, DefaultCharacteristicUUID)
	if err != nil {
		t.Fatal(err)
	}
	frames := make(chan string, 16)
	if err := stream.Start(func(b []byte) { frames <- string(b) }); err != nil {
		t.Fatal(err)
	}
	return link, frames, drops
}

func TestSerialFramesInOrder(t *testing.T) {
	port := newPipePort()
	link, frames, _ := connectSerial(t, port)
	defer link.Close()

	go fmt.Fprint(port.w, "AX: 1\nAX: 2\nAX: 3\n")
	for i := 1; i <= 3; i++ {
		select {
		case got := <-frames:
			if want := fmt.Sprintf("AX: %d", i); got != want {
				t.Fatalf("frame %d = %q, want %q", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestSerialReadErrorIsADrop(t *testing.T) {
	port := newPipePort()
	_, _, drops := connectSerial(t, port)

	port.w.CloseWithError(errors.New("device unplugged"))
	select {
	case <-drops:
	case <-time.After(time.Second):
		t.Fatal("read error not reported as a drop")
	}
}

func TestSerialDeviceEOFIsADrop(t *testing.T) {
	port := newPipePort()
	_, _, drops := connectSerial(t, port)

	port.w.Close()
	select {
	case <-drops:
	case <-time.After(time.Second):
		t.Fatal("end of stream not reported as a drop")
	}
}

func TestSerialCloseIsNotADrop(t *testing.T) {
	port := newPipePort()
	link, _, drops := connectSerial(t, port)

	if err := link.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-drops:
		t.Fatal("close reported as a drop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSerialUnavailableWithoutPorts(t *testing.T) {
	if err := NewSerial(SerialConfig{}, nil).Available(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v", err)
	}
}
