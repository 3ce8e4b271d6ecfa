// Package enumerate discovers source files under the input directory and
// pairs each with its optional metadata sidecar.
package enumerate

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// gridSuffix marks gridded JSON containers; plain .json files are ignored
// so sidecars are never mistaken for sources.
const (
	gridSuffix    = ".grid.json"
	tabularSuffix = ".csv"
	sidecarSuffix = ".meta.json"
)

// Sources walks dir recursively and returns one Source per recognized file,
// sorted by path for a stable processing order. A malformed sidecar fails
// the enumeration: silently ingesting a file without its declarations would
// corrupt downstream identities.
func Sources(dir string, logger *slog.Logger) ([]domain.Source, error) {
	var sources []domain.Source

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		var kind domain.SourceKind
		switch {
		case strings.HasSuffix(path, gridSuffix):
			kind = domain.SourceGrid
		case strings.HasSuffix(path, tabularSuffix):
			kind = domain.SourceTabular
		default:
			return nil
		}

		meta, err := loadSidecar(path)
		if err != nil {
			return err
		}

		src := domain.Source{
			ID:       sourceID(dir, path, meta),
			Path:     path,
			Kind:     kind,
			Declared: meta,
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", dir, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	logger.Info("sources enumerated", "dir", dir, "count", len(sources))
	return sources, nil
}

// sourceID prefers the sidecar's declared ID, falling back to the file's
// path relative to the input root. The ID is part of the measurement
// identity, so it must be stable across runs.
func sourceID(root, path string, meta *domain.DeclaredMetadata) string {
	if meta != nil && meta.SourceID != "" {
		return meta.SourceID
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// loadSidecar reads <file>.meta.json next to the source, or nil when the
// sidecar does not exist.
func loadSidecar(path string) (*domain.DeclaredMetadata, error) {
	data, err := os.ReadFile(path + sidecarSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar for %s: %w", path, err)
	}

	var meta domain.DeclaredMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse sidecar for %s: %w", path, err)
	}
	return &meta, nil
}
