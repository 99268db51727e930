// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/motion_assessment/internal/app"
	"github.com/relabs-tech/motion_assessment/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	open := flag.Bool("open", false, "open the dashboard in a browser")
	flag.Parse()

	log.Println("starting motion-assessment capture service")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("transport=%s picker=%s upload=%s", cfg.Transport, cfg.DevicePicker, cfg.UploadMode)

	if err := app.RunCapture(cfg, *open); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
