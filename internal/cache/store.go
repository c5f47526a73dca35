// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package cache persists sanitized result bundles, one compressed archive
// per artifact, and reconciles the archive directory against the artifact
// registry with a retention sweep.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/atelier/internal/image"
	"github.com/tomtom215/atelier/internal/metrics"
)

// ErrNotFound is returned when no bundle exists for a cache id.
var ErrNotFound = errors.New("cache bundle not found")

// Image is one collected result: the original provider bytes plus the seed
// extracted from them. A nil *Image marks a slot the provider completed
// without producing a blob.
type Image struct {
	Data []byte
	Seed int64
}

// Store is the on-disk bundle store. Filenames are derived from the cache
// id and the configured archive extension.
type Store struct {
	dir      string
	ext      string
	imageExt string
}

// New creates the bundle directory if needed and returns a store.
func New(dir, ext, imageExt string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, ext: ext, imageExt: imageExt}, nil
}

// Path returns the bundle path for a cache id.
func (s *Store) Path(cacheID string) string {
	return filepath.Join(s.dir, cacheID+"."+s.ext)
}

// Write sanitizes the collected images and persists them as a single
// compressed archive keyed by cacheID. Entries are named from their
// 1-based slot position and seed; nil slots are skipped. If every slot is
// nil, no file is created.
func (s *Store) Write(cacheID string, images []*Image) error {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	wrote := false
	for i, img := range images {
		if img == nil {
			continue
		}
		sanitized, err := image.StripMetadata(img.Data)
		if err != nil {
			return fmt.Errorf("sanitize image %d: %w", i+1, err)
		}
		entry, err := zw.Create(image.FileName(i+1, strconv.FormatInt(img.Seed, 10), s.imageExt))
		if err != nil {
			return fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := entry.Write(sanitized); err != nil {
			return fmt.Errorf("write archive entry: %w", err)
		}
		wrote = true
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if !wrote {
		return nil
	}
	if err := os.WriteFile(s.Path(cacheID), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	metrics.CacheBundlesWritten.Inc()
	return nil
}

// Read returns the raw bundle bytes for a cache id.
func (s *Store) Read(cacheID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(cacheID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cacheID)
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return data, nil
}
