// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_assessment/internal/device"
)

// Announcement is the retained JSON message a sensor bridge publishes on
// <prefix>/announce/<id> to make itself selectable.
type Announcement struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
	Notify         bool   `json:"notify"`
	Battery        *int   `json:"battery,omitempty"`
}

// Status payloads on <prefix>/<id>/status. Bridges set "offline" as their
// last will so a lost sensor shows up as a disconnect.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

func AnnounceTopic(prefix, id string) string { return prefix + "/announce/" + id }
func StatusTopic(prefix, id string) string   { return prefix + "/" + id + "/status" }
func NotifyTopic(prefix, id, characteristic string) string {
	return prefix + "/" + id + "/notify/" + strings.ToLower(characteristic)
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Prefix   string
	// Settle is how long RequestDevice waits after subscribing for retained
	// announcements to arrive.
	Settle time.Duration
}

// MQTT reaches sensors through a broker. Each device is bridged to a set of
// topics that mirror the GATT layout of the firmware.
type MQTT struct {
	cfg    MQTTConfig
	picker Picker

	connectOnce sync.Once
	connectErr  error
	client      mqtt.Client
	readyAt     time.Time

	mu        sync.Mutex
	announced map[string]Announcement
	status    map[string]string
	links     map[string]*mqttLink
}

// NewMQTT returns an unconnected transport; the broker is dialled on first use.
func NewMQTT(cfg MQTTConfig, picker Picker) *MQTT {
	if cfg.Settle == 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	return &MQTT{
		cfg:       cfg,
		picker:    picker,
		announced: make(map[string]Announcement),
		status:    make(map[string]string),
		links:     make(map[string]*mqttLink),
	}
}

func (t *MQTT) Available() error {
	t.connectOnce.Do(func() { t.connectErr = t.connect() })
	if t.connectErr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, t.connectErr)
	}
	return nil
}

// clientOptions keeps paho's ordered delivery: frames of one sensor must
// reach the decoder in the order the broker sent them. Callbacks therefore
// must not block on the client; drops hand off to a goroutine.
func (t *MQTT) clientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetAutoReconnect(true)
}

func (t *MQTT) connect() error {
	client := mqtt.NewClient(t.clientOptions())
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect %s: %w", t.cfg.Broker, token.Error())
	}
	log.Printf("transport: connected to MQTT broker at %s", t.cfg.Broker)

	if token := client.Subscribe(t.cfg.Prefix+"/announce/+", 1, t.onAnnounce); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe announcements: %w", token.Error())
	}
	if token := client.Subscribe(t.cfg.Prefix+"/+/status", 1, t.onStatus); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe status: %w", token.Error())
	}
	t.client = client
	t.readyAt = time.Now().Add(t.cfg.Settle)
	return nil
}

func (t *MQTT) onAnnounce(_ mqtt.Client, msg mqtt.Message) {
	var a Announcement
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		log.Printf("transport: bad announcement on %s: %v", msg.Topic(), err)
		return
	}
	if a.ID == "" {
		a.ID = strings.TrimPrefix(msg.Topic(), t.cfg.Prefix+"/announce/")
	}
	t.mu.Lock()
	t.announced[a.ID] = a
	t.mu.Unlock()
}

func (t *MQTT) onStatus(_ mqtt.Client, msg mqtt.Message) {
	rest := strings.TrimPrefix(msg.Topic(), t.cfg.Prefix+"/")
	id := strings.TrimSuffix(rest, "/status")
	state := strings.TrimSpace(string(msg.Payload()))

	t.mu.Lock()
	t.status[id] = state
	l := t.links[id]
	t.mu.Unlock()

	if state == StatusOffline && l != nil {
		l.dropped()
	}
}

// Close disconnects from the broker.
func (t *MQTT) Close() {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func (t *MQTT) RequestDevice(ctx context.Context, slot device.SlotID) Selection {
	if err := t.Available(); err != nil {
		return Fail(err)
	}
	if wait := time.Until(t.readyAt); wait > 0 {
		select {
		case <-ctx.Done():
			return Cancel()
		case <-time.After(wait):
		}
	}

	t.mu.Lock()
	candidates := make([]DeviceHandle, 0, len(t.announced))
	for id, a := range t.announced {
		if t.status[id] == StatusOffline {
			continue
		}
		candidates = append(candidates, NewHandle(id, a.Name))
	}
	t.mu.Unlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID() < candidates[j].ID() })

	return t.picker.Pick(ctx, slot, candidates)
}

func (t *MQTT) Connect(_ context.Context, dev DeviceHandle, onDisconnect func()) (Link, error) {
	if err := t.Available(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.announced[dev.ID()]
	if !ok {
		return nil, fmt.Errorf("device %s is not announced", dev.ID())
	}
	if t.status[dev.ID()] == StatusOffline {
		return nil, fmt.Errorf("device %s is offline", dev.ID())
	}
	l := &mqttLink{t: t, ann: a, onDisconnect: onDisconnect}
	t.links[dev.ID()] = l
	return l, nil
}

type mqttLink struct {
	t            *MQTT
	ann          Announcement
	onDisconnect func()
	once         sync.Once
	stream       *mqttStream
}

func (l *mqttLink) dropped() {
	l.once.Do(func() {
		l.t.mu.Lock()
		if l.t.links[l.ann.ID] == l {
			delete(l.t.links, l.ann.ID)
		}
		l.t.mu.Unlock()
		if l.onDisconnect != nil {
			go l.onDisconnect()
		}
	})
}

func (l *mqttLink) Discover(_ context.Context, service, characteristic string) (Stream, error) {
	if !strings.EqualFold(l.ann.Service, service) || !strings.EqualFold(l.ann.Characteristic, characteristic) {
		return nil, fmt.Errorf("%s: %w", l.ann.ID, ErrServiceNotFound)
	}
	l.stream = &mqttStream{
		client: l.t.client,
		topic:  NotifyTopic(l.t.cfg.Prefix, l.ann.ID, characteristic),
		notify: l.ann.Notify,
	}
	return l.stream, nil
}

func (l *mqttLink) BatteryLevel(context.Context) (int, error) {
	if l.ann.Battery == nil {
		return 0, ErrNoBattery
	}
	return *l.ann.Battery, nil
}

func (l *mqttLink) Close() error {
	// closing is not a drop: swallow any later offline status
	l.once.Do(func() {})
	l.t.mu.Lock()
	if l.t.links[l.ann.ID] == l {
		delete(l.t.links, l.ann.ID)
	}
	l.t.mu.Unlock()
	if l.stream != nil {
		return l.stream.Stop()
	}
	return nil
}

type mqttStream struct {
	client mqtt.Client
	topic  string
	notify bool

	mu         sync.Mutex
	subscribed bool
}

func (s *mqttStream) CanNotify() bool { return s.notify }

func (s *mqttStream) Start(onFrame func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		onFrame(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
	}
	s.subscribed = true
	return nil
}

func (s *mqttStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.topic, token.Error())
	}
	return nil
}
