// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// DefaultMaxAge is how long a fix is used for speed before it is stale.
const DefaultMaxAge = 3 * time.Second

// Receiver keeps the latest valid fix from an NMEA stream.
type Receiver struct {
	Port     string
	BaudRate uint
	MaxAge   time.Duration

	now  func() time.Time
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)

	mu     sync.Mutex
	latest Fix
	valid  bool
}

func NewReceiver(port string, baud uint) *Receiver {
	return &Receiver{
		Port:     port,
		BaudRate: baud,
		MaxAge:   DefaultMaxAge,
		now:      time.Now,
		open:     serial.Open,
	}
}

// Run reads the serial port until ctx is done or the port fails.
func (r *Receiver) Run(ctx context.Context) error {
	port, err := r.open(serial.OpenOptions{
		PortName:        r.Port,
		BaudRate:        r.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", r.Port, err)
	}
	log.Printf("gps: reading %s at %d baud", r.Port, r.BaudRate)

	go func() {
		<-ctx.Done()
		port.Close()
	}()
	return r.Read(ctx, port)
}

// Read feeds every line of rd to the receiver.
func (r *Receiver) Read(ctx context.Context, rd io.Reader) error {
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		r.Feed(sc.Text())
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("gps: read: %w", err)
	}
	return io.EOF
}

// Feed parses one NMEA line. Sentences other than RMC, void fixes and
// garbage are ignored; it reports whether the fix was updated.
func (r *Receiver) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return false
	}
	rmc, ok := s.(nmea.RMC)
	if !ok || rmc.Validity != nmea.ValidRMC {
		return false
	}

	fix := Fix{
		Time:      rmc.Time.String(),
		Date:      rmc.Date.String(),
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
		SpeedMPS:  rmc.Speed * KnotsToMPS,
		CourseDeg: rmc.Course,
		Received:  r.now(),
	}
	r.mu.Lock()
	r.latest = fix
	r.valid = true
	r.mu.Unlock()
	return true
}

// Latest returns the last valid fix.
func (r *Receiver) Latest() (Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.valid
}

// Speed returns the ground speed in m/s, or false without a fresh fix.
func (r *Receiver) Speed() (float64, bool) {
	f, ok := r.Latest()
	if !ok || (r.MaxAge > 0 && r.now().Sub(f.Received) > r.MaxAge) {
		return 0, false
	}
	return f.SpeedMPS, true
}
