// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without calling the collaborator while the
// breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open; fast-fail")

type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	default:
		return "half-open"
	}
}

// Breaker stops calling a failing collaborator for a while. After
// MaxFailures consecutive failures it opens; once ResetTimeout has passed
// the next call is let through as a trial call (half-open) and closes the
// breaker on success.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    BreakerState
	fails    int
	openedAt time.Time
}

func NewBreaker(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{name: name, maxFailures: maxFailures, resetTimeout: resetTimeout, now: time.Now}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = HalfOpen
		log.Printf("upload: breaker %s half-open, probing", b.name)
	case HalfOpen:
		// one trial call at a time
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state != Closed {
			log.Printf("upload: breaker %s closed", b.name)
		}
		b.state = Closed
		b.fails = 0
		return nil
	}
	b.fails++
	if b.state == HalfOpen || b.fails >= b.maxFailures {
		if b.state != Open {
			log.Printf("upload: breaker %s opened after %d failures", b.name, b.fails)
		}
		b.state = Open
		b.openedAt = b.now()
	}
	return err
}
