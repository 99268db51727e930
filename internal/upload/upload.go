// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package upload hands finished CSV files to wherever a test's data is
// collected. Uploaders do not retry; a failed file stays available in
// memory for re-export.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNoSubject means the customer or test id is missing.
var ErrNoSubject = errors.New("upload requires customer and test id")

// File is one CSV destined for a customer's test.
type File struct {
	CustomerID string `json:"customerId"`
	TestID     string `json:"testId"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	CSVContent string `json:"csvContent"`
}

// Key is the file's path below the upload root: customer/test/fileName.
func (f File) Key() string {
	return path.Join(f.CustomerID, f.TestID, f.FileName)
}

// Validate rejects files that cannot be placed safely.
func (f File) Validate() error {
	if f.CustomerID == "" || f.TestID == "" {
		return ErrNoSubject
	}
	for _, part := range []string{f.CustomerID, f.TestID} {
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return fmt.Errorf("invalid path component %q", part)
		}
	}
	if f.FileName == "" || path.IsAbs(f.FileName) || strings.HasPrefix(path.Clean(f.FileName), "..") {
		return fmt.Errorf("invalid file name %q", f.FileName)
	}
	return nil
}

// Uploader delivers one file.
type Uploader interface {
	Upload(ctx context.Context, f File) error
}

// NewID returns a fresh upload id so receivers can drop duplicates.
func NewID() string { return uuid.NewString() }
