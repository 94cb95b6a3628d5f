// Package artifact persists per-layer analysis outputs as timestamp-suffixed
// JSON files, so "most recent" is well-defined by lexicographic filename
// order.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"warden/internal/logging"
)

// Layer names, one subdirectory per analysis layer.
const (
	LayerTraces          = "traces"
	LayerDrift           = "drift"
	LayerRecommendations = "recommendations"
	LayerReview          = "review"
	LayerCounterfactual  = "counterfactual"
	LayerFutures         = "futures"
	LayerFederated       = "federated"
	LayerAutopilot       = "autopilot"
	LayerRunbook         = "runbook"
)

// timestampLayout orders filenames lexicographically by creation time.
const timestampLayout = "20060102T150405.000"

// Store writes and reads layer artifacts under a root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// Write marshals v and writes it to <root>/<layer>/<prefix>-<timestamp>.json.
// It returns the written path.
func (s *Store) Write(layer, prefix string, v interface{}, now time.Time) (string, error) {
	dir := filepath.Join(s.root, layer)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", prefix, now.UTC().Format(timestampLayout))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	logging.Artifact("wrote %s (%dB)", path, len(data))
	return path, nil
}

// History returns every artifact path in a layer, oldest first.
func (s *Store) History(layer string) ([]string, error) {
	dir := filepath.Join(s.root, layer)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Latest unmarshals the most recent artifact in a layer into v. It reports
// whether an artifact was found.
func (s *Store) Latest(layer string, v interface{}) (bool, error) {
	paths, err := s.History(layer)
	if err != nil {
		return false, err
	}
	if len(paths) == 0 {
		return false, nil
	}
	return true, s.Read(paths[len(paths)-1], v)
}

// Read unmarshals one artifact file into v.
func (s *Store) Read(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	return nil
}

// ReadAll unmarshals every artifact in a layer, oldest first. The decode
// callback receives each path; it returns the value to append.
func ReadAll[T any](s *Store, layer string) ([]T, error) {
	paths, err := s.History(layer)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(paths))
	for _, p := range paths {
		var v T
		if err := s.Read(p, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
