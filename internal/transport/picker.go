// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// Picker chooses one of the discovered candidates for a slot.
type Picker interface {
	Pick(ctx context.Context, slot device.SlotID, candidates []DeviceHandle) Selection
}

// NewPicker returns the picker named in config: "pinned", "first" or "console".
func NewPicker(kind string, pinned map[device.SlotID]string, in io.Reader, out io.Writer) (Picker, error) {
	switch kind {
	case "pinned":
		return PinnedPicker(pinned), nil
	case "first", "":
		return &FirstPicker{}, nil
	case "console":
		return &ConsolePicker{In: bufio.NewReader(in), Out: out}, nil
	default:
		return nil, fmt.Errorf("unknown device picker %q", kind)
	}
}

// PinnedPicker binds each slot to a configured device id or name. Slots
// without an entry are treated as a cancelled selection.
type PinnedPicker map[device.SlotID]string

func (p PinnedPicker) Pick(_ context.Context, slot device.SlotID, candidates []DeviceHandle) Selection {
	want, ok := p[slot]
	if !ok || want == "" {
		return Cancel()
	}
	for _, c := range candidates {
		if c.ID() == want || c.Name() == want {
			return Select(c)
		}
	}
	return Fail(fmt.Errorf("device %q for %s not found", want, slot))
}

// FirstPicker hands out the first candidate not yet given to another slot.
type FirstPicker struct {
	mu      sync.Mutex
	claimed map[string]device.SlotID
}

func (p *FirstPicker) Pick(_ context.Context, slot device.SlotID, candidates []DeviceHandle) Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claimed == nil {
		p.claimed = make(map[string]device.SlotID)
	}
	for _, c := range candidates {
		if owner, taken := p.claimed[c.ID()]; taken && owner != slot {
			continue
		}
		p.claimed[c.ID()] = slot
		return Select(c)
	}
	return Cancel()
}

// ConsolePicker asks the operator on a terminal. An empty answer cancels.
// One reader goroutine owns In for the picker's lifetime, so a cancelled
// prompt never swallows the answer meant for the next one.
type ConsolePicker struct {
	In  *bufio.Reader
	Out io.Writer

	mu      sync.Mutex
	start   sync.Once
	answers chan consoleAnswer
	readErr error
}

type consoleAnswer struct {
	line string
	err  error
}

func (p *ConsolePicker) readLines() {
	for {
		line, err := p.In.ReadString('\n')
		p.answers <- consoleAnswer{line, err}
		if err != nil {
			return
		}
	}
}

// drain discards lines typed while no prompt was open.
func (p *ConsolePicker) drain() {
	for p.answers != nil {
		select {
		case a := <-p.answers:
			if a.err != nil {
				p.readErr = a.err
			}
		default:
			return
		}
	}
}

func (p *ConsolePicker) Pick(ctx context.Context, slot device.SlotID, candidates []DeviceHandle) Selection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(candidates) == 0 {
		fmt.Fprintf(p.Out, "no devices found for %s\n", slot)
		return Cancel()
	}
	p.drain()
	fmt.Fprintf(p.Out, "select device for %s:\n", slot)
	for i, c := range candidates {
		fmt.Fprintf(p.Out, "  [%d] %s (%s)\n", i+1, c.Name(), c.ID())
	}
	fmt.Fprint(p.Out, "number or id (empty to skip): ")

	var a consoleAnswer
	if p.readErr != nil {
		a.err = p.readErr
	} else {
		p.start.Do(func() {
			p.answers = make(chan consoleAnswer)
			go p.readLines()
		})
		select {
		case <-ctx.Done():
			return Cancel()
		case a = <-p.answers:
		}
		if a.err != nil {
			p.readErr = a.err
		}
	}
	line := strings.TrimSpace(a.line)
	if line == "" {
		if a.err != nil && a.err != io.EOF {
			return Fail(fmt.Errorf("read selection: %w", a.err))
		}
		return Cancel()
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(candidates) {
		return Select(candidates[n-1])
	}
	for _, c := range candidates {
		if c.ID() == line || c.Name() == line {
			return Select(c)
		}
	}
	return Fail(fmt.Errorf("no device matches %q", line))
}
