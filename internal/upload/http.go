// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPUploader posts each file as JSON to an upload endpoint through a
// circuit breaker.
type HTTPUploader struct {
	URL     string
	Client  *http.Client
	Breaker *Breaker
}

func NewHTTPUploader(url string, breaker *Breaker) *HTTPUploader {
	return &HTTPUploader{
		URL:     url,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Breaker: breaker,
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, f File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	id := NewID()

	op := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", id)

		resp, err := u.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("upload %s: status %d: %s", f.FileName, resp.StatusCode, bytes.TrimSpace(msg))
		}
		return nil
	}

	if u.Breaker != nil {
		err = u.Breaker.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return err
	}
	log.Printf("upload: posted %s (%s)", f.Key(), id)
	return nil
}
