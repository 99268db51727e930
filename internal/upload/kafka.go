// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaUploader writes one message per file, keyed by customer/test/fileName.
type KafkaUploader struct {
	writer kafkaMessageWriter
}

func NewKafkaUploader(brokers []string, topic string) *KafkaUploader {
	return &KafkaUploader{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

func (u *KafkaUploader) Upload(ctx context.Context, f File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	id := NewID()
	msg := kafka.Message{
		Key:   []byte(f.Key()),
		Value: []byte(f.CSVContent),
		Headers: []kafka.Header{
			{Key: "upload-id", Value: []byte(id)},
			{Key: "file-type", Value: []byte(f.FileType)},
			{Key: "customer-id", Value: []byte(f.CustomerID)},
			{Key: "test-id", Value: []byte(f.TestID)},
		},
	}
	if err := u.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", f.Key(), err)
	}
	log.Printf("upload: sent %s to kafka (%s)", f.Key(), id)
	return nil
}

// Close flushes and closes the underlying writer.
func (u *KafkaUploader) Close() error {
	if c, ok := u.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
