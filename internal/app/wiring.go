// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_assessment/internal/config"
	"github.com/relabs-tech/motion_assessment/internal/exercise"
	"github.com/relabs-tech/motion_assessment/internal/transport"
	"github.com/relabs-tech/motion_assessment/internal/upload"
)

// closer collects shutdown hooks of the components built from config.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// buildTransport returns the sensor transport selected by TRANSPORT.
func buildTransport(cfg *config.Config, in io.Reader, out io.Writer, done *closer) (transport.Transport, error) {
	var picker transport.Picker
	if !(cfg.Transport == "mock" && cfg.DevicePicker == "pinned" && len(cfg.SlotDevices) == 0) {
		p, err := transport.NewPicker(cfg.DevicePicker, cfg.SlotDevices, in, out)
		if err != nil {
			return nil, err
		}
		picker = p
	}

	switch cfg.Transport {
	case "mock":
		return transport.NewMock(picker), nil
	case "mqtt":
		t := transport.NewMQTT(transport.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Prefix:   cfg.MQTTTopicPrefix,
		}, picker)
		done.add(t.Close)
		return t, nil
	case "serial":
		return transport.NewSerial(transport.SerialConfig{
			Ports:    cfg.SerialPorts,
			BaudRate: cfg.SerialBaudRate,
		}, picker), nil
	case "ble":
		return transport.NewBLE(transport.BLEConfig{
			Service:      cfg.ServiceUUID,
			ScanDuration: cfg.BLEScan(),
		}, picker), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// buildUploader returns the uploader selected by UPLOAD_MODE, or nil for
// "none".
func buildUploader(cfg *config.Config, done *closer) (upload.Uploader, error) {
	switch cfg.UploadMode {
	case "none", "":
		return nil, nil
	case "dir":
		return upload.DirUploader{Base: cfg.UploadDir}, nil
	case "http":
		breaker := upload.NewBreaker("upload", cfg.BreakerMaxFailures, cfg.BreakerReset())
		return upload.NewHTTPUploader(cfg.UploadURL, breaker), nil
	case "mqtt":
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientID + "-upload").
			SetAutoReconnect(true)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("upload broker %s: %w", cfg.MQTTBroker, token.Error())
		}
		log.Printf("capture: upload client connected to MQTT broker at %s", cfg.MQTTBroker)
		done.add(func() { client.Disconnect(250) })
		return &upload.MQTTUploader{Client: client, Topic: cfg.UploadMQTTTopic}, nil
	case "kafka":
		k := upload.NewKafkaUploader(cfg.KafkaBrokers, cfg.KafkaTopic)
		done.add(func() {
			if err := k.Close(); err != nil {
				log.Printf("capture: close kafka writer: %v", err)
			}
		})
		return k, nil
	default:
		return nil, fmt.Errorf("unknown upload mode %q", cfg.UploadMode)
	}
}

// loadCatalog returns the configured exercise catalog.
func loadCatalog(cfg *config.Config) (exercise.Catalog, error) {
	if cfg.ExerciseCatalog == "" {
		return exercise.DefaultCatalog(), nil
	}
	return exercise.LoadCatalog(cfg.ExerciseCatalog)
}
