// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_assessment/internal/imu"
	"github.com/relabs-tech/motion_assessment/internal/transport"
)

// RunConsoleMQTT prints every announcement, status change and decoded
// sensor frame seen under prefix until Ctrl+C.
func RunConsoleMQTT(broker, clientID, prefix string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", broker)

	annToken := client.Subscribe(prefix+"/announce/+", 1, func(_ mqtt.Client, msg mqtt.Message) {
		var a transport.Announcement
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Printf("console: announcement unmarshal error: %v", err)
			return
		}
		battery := "?"
		if a.Battery != nil {
			battery = fmt.Sprintf("%d%%", *a.Battery)
		}
		fmt.Printf("[ANN ] %-12s %q notify=%v battery=%s\n", a.ID, a.Name, a.Notify, battery)
	})
	annToken.Wait()
	if annToken.Error() != nil {
		return annToken.Error()
	}

	statusToken := client.Subscribe(prefix+"/+/status", 1, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("[STAT] %-12s %s\n", deviceFromTopic(prefix, msg.Topic()), msg.Payload())
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}

	frameToken := client.Subscribe(prefix+"/+/notify/+", 0, func(_ mqtt.Client, msg mqtt.Message) {
		id := deviceFromTopic(prefix, msg.Topic())
		f := imu.Decode(string(msg.Payload()))
		if f.Measurement == nil {
			if f.HasBattery() {
				fmt.Printf("[%-12s] bat=%d%%\n", id, f.Battery)
			} else {
				fmt.Printf("[%-12s] undecodable frame %q\n", id, msg.Payload())
			}
			return
		}
		m := f.Measurement
		line := fmt.Sprintf(
			"[%-12s] ax=%7.3f ay=%7.3f az=%7.3f  gx=%7.2f gy=%7.2f gz=%7.2f  mx=%6.1f my=%6.1f mz=%6.1f",
			id, m.AX, m.AY, m.AZ, m.GX, m.GY, m.GZ, m.MX, m.MY, m.MZ,
		)
		if f.HasBattery() {
			line += fmt.Sprintf("  bat=%d%%", f.Battery)
		}
		fmt.Println(line)
	})
	frameToken.Wait()
	if frameToken.Error() != nil {
		return frameToken.Error()
	}
	log.Printf("console: subscribed to %s/#", prefix)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// deviceFromTopic extracts <id> from <prefix>/<id>/...
func deviceFromTopic(prefix, topic string) string {
	rest := strings.TrimPrefix(topic, prefix+"/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}
