// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// SerialConfig configures the wired transport: one sensor per serial port,
// each writing newline-delimited text frames.
type SerialConfig struct {
	Ports    []string
	BaudRate uint
}

// Serial treats every configured port as a candidate device. A port has
// a single data stream, so service discovery always succeeds.
type Serial struct {
	cfg    SerialConfig
	picker Picker
	open   func(serial.OpenOptions) (io.ReadWriteCloser, error)
}

func NewSerial(cfg SerialConfig, picker Picker) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &Serial{cfg: cfg, picker: picker, open: serial.Open}
}

func (t *Serial) Available() error {
	if len(t.cfg.Ports) == 0 {
		return fmt.Errorf("%w: no serial ports configured", ErrUnsupported)
	}
	return nil
}

func (t *Serial) RequestDevice(ctx context.Context, slot device.SlotID) Selection {
	candidates := make([]DeviceHandle, 0, len(t.cfg.Ports))
	for _, p := range t.cfg.Ports {
		candidates = append(candidates, NewHandle(p, filepath.Base(p)))
	}
	return t.picker.Pick(ctx, slot, candidates)
}

func (t *Serial) Connect(_ context.Context, dev DeviceHandle, onDisconnect func()) (Link, error) {
	opts := serial.OpenOptions{
		PortName:              dev.ID(),
		BaudRate:              t.cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := t.open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.ID(), err)
	}
	return &serialLink{name: dev.ID(), port: port, onDisconnect: onDisconnect}, nil
}

type serialLink struct {
	name         string
	port         io.ReadWriteCloser
	onDisconnect func()

	mu      sync.Mutex
	closed  bool
	handler func([]byte)
	started bool
}

func (l *serialLink) Discover(context.Context, string, string) (Stream, error) {
	return l, nil
}

func (l *serialLink) BatteryLevel(context.Context) (int, error) {
	// battery arrives in-band as a BAT token
	return 0, ErrNoBattery
}

func (l *serialLink) CanNotify() bool { return true }

func (l *serialLink) Start(onFrame func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("serial link closed")
	}
	l.handler = onFrame
	if !l.started {
		l.started = true
		go l.readLoop()
	}
	return nil
}

func (l *serialLink) Stop() error {
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

func (l *serialLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.handler = nil
	l.mu.Unlock()
	return l.port.Close()
}

func (l *serialLink) readLoop() {
	scanner := bufio.NewScanner(l.port)
	for scanner.Scan() {
		l.mu.Lock()
		fn := l.handler
		l.mu.Unlock()
		if fn != nil {
			// Scanner reuses its buffer
			fn(append([]byte(nil), scanner.Bytes()...))
		}
	}

	l.mu.Lock()
	closed := l.closed
	l.closed = true
	l.mu.Unlock()
	if closed {
		return
	}
	if err := scanner.Err(); err != nil {
		log.Printf("transport: serial read error on %s: %v", l.name, err)
	} else {
		log.Printf("transport: serial port %s closed by device", l.name)
	}
	l.port.Close()
	if l.onDisconnect != nil {
		l.onDisconnect()
	}
}
