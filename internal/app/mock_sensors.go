// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/orientation"
	"github.com/relabs-tech/motion_assessment/internal/transport"
)

// batteryEvery is how many frames pass between battery reports.
const batteryEvery = 50

// mockSensor is one simulated device bridged to MQTT.
type mockSensor struct {
	ann     transport.Announcement
	prefix  string
	client  mqtt.Client
	src     *orientation.MockSource
	battery int
	frames  int
}

// RunMockSensors publishes four simulated sensors on the broker until
// SIGINT or SIGTERM. Each sensor has its own client so its last will marks
// it offline when the process dies.
func RunMockSensors(broker, prefix string, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sensors []*mockSensor
	defer func() {
		for _, s := range sensors {
			s.offline()
		}
	}()

	for i, slot := range device.Slots {
		battery := 95 - 5*i
		s := &mockSensor{
			ann: transport.Announcement{
				ID:             fmt.Sprintf("mock-imu-%d", i+1),
				Name:           "Mock IMU " + slot.Name,
				Service:        transport.DefaultServiceUUID,
				Characteristic: transport.DefaultCharacteristicUUID,
				Notify:         true,
				Battery:        &battery,
			},
			prefix:  prefix,
			src:     orientation.NewMockSource(30+10*float64(i), float64(i)*math.Pi/4),
			battery: battery,
		}
		if err := s.connect(broker); err != nil {
			return err
		}
		sensors = append(sensors, s)
	}
	log.Printf("mock_sensors: %d sensors online on %s under %s/", len(sensors), broker, prefix)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("mock_sensors: shutting down")
			return nil
		case <-ticker.C:
		}
		for _, s := range sensors {
			s.publishFrame()
		}
	}
}

func (s *mockSensor) connect(broker string) error {
	statusTopic := transport.StatusTopic(s.prefix, s.ann.ID)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("motion-" + s.ann.ID).
		SetWill(statusTopic, transport.StatusOffline, 1, true)

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s: connect %s: %w", s.ann.ID, broker, token.Error())
	}

	payload, err := json.Marshal(s.ann)
	if err != nil {
		return err
	}
	if token := s.client.Publish(transport.AnnounceTopic(s.prefix, s.ann.ID), 1, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s: announce: %w", s.ann.ID, token.Error())
	}
	if token := s.client.Publish(statusTopic, 1, true, transport.StatusOnline); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s: status: %w", s.ann.ID, token.Error())
	}
	return nil
}

func (s *mockSensor) publishFrame() {
	pose, err := s.src.Next()
	if err != nil {
		log.Printf("mock_sensors: %s: %v", s.ann.ID, err)
		return
	}
	battery := -1
	if s.frames%batteryEvery == 0 {
		battery = s.battery
	}
	s.frames++

	topic := transport.NotifyTopic(s.prefix, s.ann.ID, s.ann.Characteristic)
	token := s.client.Publish(topic, 0, false, imu.Format(pose.Measurement(), battery))
	token.Wait()
	if token.Error() != nil {
		log.Printf("mock_sensors: %s publish error: %v", s.ann.ID, token.Error())
	}
}

// offline marks the sensor offline before a clean disconnect, which does
// not fire the will.
func (s *mockSensor) offline() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	token := s.client.Publish(transport.StatusTopic(s.prefix, s.ann.ID), 1, true, transport.StatusOffline)
	token.Wait()
	s.client.Disconnect(250)
}
