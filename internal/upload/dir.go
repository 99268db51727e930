// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// DirUploader stores files below a local directory, one folder per
// customer and test.
type DirUploader struct {
	Base string
}

func (u DirUploader) Upload(_ context.Context, f File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	dst := filepath.Join(u.Base, filepath.FromSlash(f.Key()))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(f.CSVContent); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.FileName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", f.FileName, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", f.FileName, err)
	}
	log.Printf("upload: wrote %s", dst)
	return nil
}
