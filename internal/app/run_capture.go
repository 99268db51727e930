// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cli/browser"
	"github.com/gorilla/handlers"

	"github.com/relabs-tech/motion_assessment/internal/config"
	"github.com/relabs-tech/motion_assessment/internal/exercise"
	"github.com/relabs-tech/motion_assessment/internal/gps"
	"github.com/relabs-tech/motion_assessment/internal/transport"
)

// RunCapture serves the capture API until SIGINT or SIGTERM. With
// openBrowser the dashboard is opened once the listener is up.
func RunCapture(cfg *config.Config, openBrowser bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var done closer
	defer done.close()

	tr, err := buildTransport(cfg, os.Stdin, os.Stdout, &done)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	up, err := buildUploader(cfg, &done)
	if err != nil {
		return fmt.Errorf("uploader: %w", err)
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	deps := CaptureDeps{
		Transport:          tr,
		Uploader:           up,
		Catalog:            cat,
		Subject:            exercise.Subject{CustomerID: cfg.CustomerID, TestID: cfg.TestID},
		ServiceUUID:        cfg.ServiceUUID,
		CharacteristicUUID: cfg.CharacteristicUUID,
	}
	if cfg.GPSSerialPort != "" {
		rx := gps.NewReceiver(cfg.GPSSerialPort, cfg.GPSBaudRate)
		deps.Speed = rx
		go func() {
			if err := rx.Run(ctx); err != nil {
				log.Printf("capture: gps stopped: %v", err)
			}
		}()
	}

	capture, err := NewCapture(deps)
	if err != nil {
		return err
	}
	done.add(capture.Close)

	if mock, ok := tr.(*transport.Mock); ok {
		go mock.Run(ctx, cfg.MockInterval())
		log.Printf("capture: mock sensors streaming every %s", cfg.MockInterval())
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(os.Stdout, capture.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("capture: web server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	if openBrowser {
		url := fmt.Sprintf("http://localhost:%d/api/exercises", cfg.WebServerPort)
		if err := browser.OpenURL(url); err != nil {
			log.Printf("capture: could not open browser: %v", err)
		}
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("capture: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
