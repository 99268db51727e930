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

	log.Println("starting motion-assessment console (MQTT subscriber)")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-console", cfg.MQTTTopicPrefix); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
