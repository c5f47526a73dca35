// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/atelier/internal/logging"
	"github.com/tomtom215/atelier/internal/metrics"
	"github.com/tomtom215/atelier/internal/resource"
)

// Sweep walks the bundle directory and removes every file that no live,
// unexpired artifact claims: a file survives only if some artifact's cache
// id is a substring of its name and the file is younger than retention.
// The returned slice holds the artifacts that still have a surviving file;
// the caller re-persists the registry from it. Sweep is idempotent.
func (s *Store) Sweep(artifacts []resource.Artifact, retention time.Duration) ([]resource.Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	now := time.Now()
	survivors := make(map[string]resource.Artifact)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}

		valid := false
		for _, artifact := range artifacts {
			if artifact.CacheID == "" || !strings.Contains(entry.Name(), artifact.CacheID) {
				continue
			}
			if now.Sub(info.ModTime()) < retention {
				survivors[artifact.CacheID] = artifact
				valid = true
			}
		}

		if !valid {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				return nil, fmt.Errorf("remove expired bundle %s: %w", entry.Name(), err)
			}
			deleted++
		}
	}

	kept := make([]resource.Artifact, 0, len(survivors))
	for _, artifact := range artifacts {
		if _, ok := survivors[artifact.CacheID]; ok {
			kept = append(kept, artifact)
		}
	}

	metrics.CacheSweepDeleted.Add(float64(deleted))
	metrics.CacheBundles.Set(float64(len(kept)))
	if deleted > 0 || len(kept) != len(artifacts) {
		logging.Info().
			Int("deleted_files", deleted).
			Int("dropped_artifacts", len(artifacts)-len(kept)).
			Int("surviving", len(kept)).
			Msg("Retention sweep completed")
	}
	return kept, nil
}
