// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/atelier/internal/logging"
)

// Paths locates the three JSON collection files.
type Paths struct {
	Models    string
	Templates string
	Artifacts string
}

// Store owns the three resource collections. All mutations are serialized
// by an internal mutex and flushed to disk before returning; the persisted
// files are the only authoritative state across restarts.
type Store struct {
	mu    sync.Mutex
	paths Paths

	models    []Model
	templates []Template
	artifacts []Artifact
}

// Open loads the collections from disk. An unreadable or malformed file is
// treated as an empty collection so a corrupt file never takes the service
// down; the condition is logged.
func Open(paths Paths) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(paths.Artifacts), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	s := &Store{paths: paths}
	loadCollection(paths.Models, &s.models)
	loadCollection(paths.Templates, &s.templates)
	loadCollection(paths.Artifacts, &s.artifacts)
	return s, nil
}

// loadCollection reads one JSON array file into dst, leaving dst empty on
// any read or parse failure.
func loadCollection[T any](path string, dst *[]T) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to read collection, starting empty")
		}
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Malformed collection file, starting empty")
		*dst = nil
	}
}

// saveCollection writes one collection as an indented JSON array. The
// write goes to a temp file that is fsynced and renamed over the target,
// so a crash mid-write can never leave a torn file behind. A failed
// persist is propagated: silently swallowing it risks registry/storage
// divergence.
func saveCollection[T any](path string, src []T) error {
	if src == nil {
		src = []T{}
	}
	raw, err := json.MarshalIndent(src, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// isIndexQuery reports whether query is a positional (all digits) reference.
func isIndexQuery(query string) bool {
	if query == "" {
		return false
	}
	for _, r := range query {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// iequal compares two strings case-insensitively after trimming whitespace.
func iequal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Models returns a copy of the model collection, optionally filtered by kind
// (pass 0 for all kinds). Order is insertion order.
func (s *Store) Models(kind ModelKind) []Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterModelsLocked(s.models, kind)
}

func filterModelsLocked(models []Model, kind ModelKind) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if kind == 0 || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// ResolveModel resolves a model of the given kind by 1-based index, name,
// or urn. Numeric queries out of range return ErrIndexOutOfRange; failed
// name/urn matches return ErrNotFound.
func (s *Store) ResolveModel(kind ModelKind, query string) (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.TrimSpace(query)
	models := filterModelsLocked(s.models, kind)

	if isIndexQuery(query) {
		index := parseIndex(query)
		if index < 1 || index > len(models) {
			return Model{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(models))
		}
		return models[index-1], nil
	}

	for _, m := range models {
		if iequal(m.Name, query) {
			return m, nil
		}
	}
	for _, m := range models {
		if iequal(m.URN, query) {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %s model %q", ErrNotFound, kind, query)
}

// parseIndex converts an all-digit query to an int. Values too large to
// ever be a valid index saturate instead of overflowing.
func parseIndex(query string) int {
	index := 0
	for _, r := range query {
		index = index*10 + int(r-'0')
		if index > 1<<30 {
			return 1 << 30
		}
	}
	return index
}

// AddModel appends a model and persists the collection. Purely numeric
// names are rejected, and the urn must be unique across all kinds.
func (s *Store) AddModel(m Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isIndexQuery(m.Name) {
		return ErrNumericName
	}
	for _, existing := range s.models {
		if iequal(existing.URN, m.URN) {
			return fmt.Errorf("%w: %s model with urn %s (%s)", ErrDuplicateResource, existing.Kind, existing.URN, existing.Name)
		}
	}

	s.models = append(s.models, m)
	if err := saveCollection(s.paths.Models, s.models); err != nil {
		s.models = s.models[:len(s.models)-1]
		return err
	}
	return nil
}

// RemoveModel removes the model with the given urn and persists. Templates
// referencing it are left alone; they fail at resolution time instead.
func (s *Store) RemoveModel(urn string) (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.models {
		if iequal(m.URN, urn) {
			s.models = append(s.models[:i], s.models[i+1:]...)
			if err := saveCollection(s.paths.Models, s.models); err != nil {
				return Model{}, err
			}
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: model with urn %q", ErrNotFound, urn)
}

// Templates returns a copy of the template collection in insertion order.
func (s *Store) Templates() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// ResolveTemplate resolves a template by 1-based index or name.
func (s *Store) ResolveTemplate(query string) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.TrimSpace(query)
	if isIndexQuery(query) {
		index := parseIndex(query)
		if index < 1 || index > len(s.templates) {
			return Template{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(s.templates))
		}
		return s.templates[index-1], nil
	}

	for _, t := range s.templates {
		if iequal(t.Name, query) {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: template %q", ErrNotFound, query)
}

// AddTemplate appends a template and persists. The (author, name) pair
// must be unique; global name uniqueness is not required.
func (s *Store) AddTemplate(t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isIndexQuery(t.Name) {
		return ErrNumericName
	}
	for _, existing := range s.templates {
		if existing.Author == t.Author && iequal(existing.Name, t.Name) {
			return fmt.Errorf("%w: template %q by %s", ErrDuplicateResource, existing.Name, existing.Author)
		}
	}

	s.templates = append(s.templates, t)
	if err := saveCollection(s.paths.Templates, s.templates); err != nil {
		s.templates = s.templates[:len(s.templates)-1]
		return err
	}
	return nil
}

// RemoveTemplate removes the named template owned by author and persists.
func (s *Store) RemoveTemplate(author, name string) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.templates {
		if t.Author == author && iequal(t.Name, name) {
			s.templates = append(s.templates[:i], s.templates[i+1:]...)
			if err := saveCollection(s.paths.Templates, s.templates); err != nil {
				return Template{}, err
			}
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: template %q by %s", ErrNotFound, name, author)
}

// Artifacts returns a copy of the artifact registry in stored order.
func (s *Store) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// ResolveArtifact resolves an artifact by exact cache id match.
func (s *Store) ResolveArtifact(cacheID string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.artifacts {
		if iequal(a.CacheID, cacheID) {
			return a, nil
		}
	}
	return Artifact{}, fmt.Errorf("%w: artifact %q", ErrNotFound, cacheID)
}

// AppendArtifact records a completed job's artifact and persists.
func (s *Store) AppendArtifact(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendArtifactLocked(a)
}

// FinalizeArtifact runs persistBundle and appends the artifact record as
// one step under the write lock, so a concurrent ReconcileArtifacts can
// never observe the bundle file without its record or vice versa. A
// record that fails to persist leaves the bundle file orphaned; the next
// sweep removes it.
func (s *Store) FinalizeArtifact(a Artifact, persistBundle func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if persistBundle != nil {
		if err := persistBundle(); err != nil {
			return err
		}
	}
	return s.appendArtifactLocked(a)
}

func (s *Store) appendArtifactLocked(a Artifact) error {
	s.artifacts = append(s.artifacts, a)
	if err := saveCollection(s.paths.Artifacts, s.artifacts); err != nil {
		s.artifacts = s.artifacts[:len(s.artifacts)-1]
		return err
	}
	return nil
}

// RemoveArtifact drops the artifact with the given cache id and persists.
// Used by remix, which supersedes a prior artifact with a fresh run.
func (s *Store) RemoveArtifact(cacheID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.artifacts {
		if iequal(a.CacheID, cacheID) {
			s.artifacts = append(s.artifacts[:i], s.artifacts[i+1:]...)
			return saveCollection(s.paths.Artifacts, s.artifacts)
		}
	}
	return fmt.Errorf("%w: artifact %q", ErrNotFound, cacheID)
}

// SetArtifacts replaces the registry with the given artifacts, sorted
// ascending by timestamp, and persists.
func (s *Store) SetArtifacts(artifacts []Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceArtifactsLocked(artifacts)
}

// ReconcileArtifacts passes a snapshot of the registry to fn and replaces
// the registry with fn's survivors, sorted ascending by timestamp. The
// write lock is held across fn, so no artifact can be appended while a
// retention sweep is deciding which bundle files to keep.
func (s *Store) ReconcileArtifacts(fn func([]Artifact) ([]Artifact, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]Artifact, len(s.artifacts))
	copy(snapshot, s.artifacts)

	kept, err := fn(snapshot)
	if err != nil {
		return err
	}
	return s.replaceArtifactsLocked(kept)
}

func (s *Store) replaceArtifactsLocked(artifacts []Artifact) error {
	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	s.artifacts = sorted
	return saveCollection(s.paths.Artifacts, s.artifacts)
}
