package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/motion_assessment/internal/app"
	"github.com/relabs-tech/motion_assessment/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	flag.Parse()

	log.Println("starting motion-assessment mock sensors (synthetic IMUs → MQTT)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMockSensors(cfg.MQTTBroker, cfg.MQTTTopicPrefix, cfg.MockInterval()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
