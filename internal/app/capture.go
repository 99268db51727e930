// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/motion_assessment/internal/connection"
	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/events"
	"github.com/relabs-tech/motion_assessment/internal/exercise"
	"github.com/relabs-tech/motion_assessment/internal/metrics"
	"github.com/relabs-tech/motion_assessment/internal/recording"
	"github.com/relabs-tech/motion_assessment/internal/transport"
	"github.com/relabs-tech/motion_assessment/internal/upload"
)

const (
	// liveSampleEvery sends every nth recorded sample to live clients.
	liveSampleEvery = 5
	maxNotices      = 50
)

// CaptureDeps are the pieces of a capture service that depend on the
// host: how sensors are reached, where files go and where speed comes from.
type CaptureDeps struct {
	Transport transport.Transport
	Uploader  upload.Uploader
	Speed     events.SpeedReader
	Catalog   exercise.Catalog
	Subject   exercise.Subject
	Now       func() time.Time

	ServiceUUID        string
	CharacteristicUUID string
}

// Capture wires the registry, connection manager, aggregator and exercise
// flow of one assessment session.
type Capture struct {
	Registry   *device.Registry
	Aggregator *recording.Aggregator
	Manager    *connection.Manager
	Exercises  *exercise.Orchestrator
	Metrics    *metrics.Metrics
	Live       *Hub

	noticeMu sync.Mutex
	notices  []connection.Notice
}

// NewCapture builds a capture service. Nothing is connected yet.
func NewCapture(deps CaptureDeps) (*Capture, error) {
	c := &Capture{
		Registry: device.NewRegistry(),
		Metrics:  metrics.New(),
		Live:     NewHub(),
	}
	c.Aggregator = recording.NewAggregator(c.Registry)

	var n atomic.Uint64
	c.Aggregator.OnSample(func(s recording.Sample) {
		c.Metrics.SampleEmitted()
		if n.Add(1)%liveSampleEvery == 0 {
			c.Live.Broadcast("sample", s)
		}
	})
	c.Registry.OnChange(func(s device.Status) { c.Live.Broadcast("status", s) })

	c.Manager = connection.NewManager(c.Registry, deps.Transport, c.Aggregator, connection.Options{
		Service:        deps.ServiceUUID,
		Characteristic: deps.CharacteristicUUID,
		Notifier:       connection.NotifierFunc(c.notify),
		Recording:      c.Aggregator,
		Metrics:        c.Metrics,
	})

	kin := &events.Kinematics{Sensors: c.Registry, Speed: deps.Speed}
	orch, err := exercise.New(deps.Catalog, events.NewLog(kin), c.Aggregator, exercise.Options{
		Uploader: deps.Uploader,
		Metrics:  c.Metrics,
		Now:      deps.Now,
	})
	if err != nil {
		return nil, err
	}
	orch.SetSubject(deps.Subject)
	c.Exercises = orch
	return c, nil
}

func (c *Capture) notify(n connection.Notice) {
	c.noticeMu.Lock()
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
	c.noticeMu.Unlock()
	c.Live.Broadcast("notice", n)
}

// Notices returns the most recent operator notices, oldest first.
func (c *Capture) Notices() []connection.Notice {
	c.noticeMu.Lock()
	defer c.noticeMu.Unlock()
	return append([]connection.Notice(nil), c.notices...)
}

// Panel returns what the status panel shows right now.
func (c *Capture) Panel() PanelInfo {
	info := PanelInfo{Slots: c.Registry.Statuses()}
	if id := c.Exercises.Active(); id != "" {
		info.Exercise = id
		info.Elapsed = c.Exercises.Elapsed()
	}
	return info
}

// Close disconnects every sensor and live client.
func (c *Capture) Close() {
	c.Manager.Close()
	c.Live.Close()
}
