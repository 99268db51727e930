// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTMessage is the JSON payload published for one file. MQTT 3.1.1 has
// no message headers, so the upload id travels in the body.
type MQTTMessage struct {
	UploadID string `json:"uploadId"`
	File
}

// MQTTUploader publishes each file as an MQTTMessage to
// <Topic>/<customer>/<test>/<fileName>.
type MQTTUploader struct {
	Client mqtt.Client
	Topic  string
}

func (u *MQTTUploader) Upload(ctx context.Context, f File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	id := NewID()
	payload, err := json.Marshal(MQTTMessage{UploadID: id, File: f})
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	topic := u.Topic + "/" + f.Key()
	token := u.Client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s (%s): %w", topic, id, err)
	}
	log.Printf("upload: published %s (%s)", topic, id)
	return nil
}
