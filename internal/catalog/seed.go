// Package catalog loads and validates the versioned parameter-mapping seed
// consumed at startup. The seed is the authoritative initial state of the
// parameter catalog; runtime growth only ever adds custom entries on top.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// Seed is the on-disk catalog seed document.
type Seed struct {
	Version  int                       `json:"version"`
	Mappings []domain.ParameterMapping `json:"mappings"`
}

// LoadSeed reads and validates a seed file. Any defect is a configuration
// error: the caller must abort before processing files, because a missing
// catalog silently degrades every resolution to the lowest-confidence tier.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read catalog seed: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, fmt.Errorf("invalid catalog seed %s: %w", path, err)
	}

	// Catalog keys are stored case-folded; normalize once here so the
	// store never sees mixed-case raw identifiers.
	for i := range seed.Mappings {
		seed.Mappings[i].RawIdentifier = domain.NormalizeIdentifier(seed.Mappings[i].RawIdentifier)
	}

	return seed, nil
}

// Validate checks structural invariants: a positive version, at least one
// mapping, complete rows, known namespaces, and no duplicate identifiers
// (case-insensitive, matching the catalog's unique key).
func (s Seed) Validate() error {
	if s.Version <= 0 {
		return fmt.Errorf("version must be positive, got %d", s.Version)
	}
	if len(s.Mappings) == 0 {
		return fmt.Errorf("seed has no mappings")
	}

	seen := make(map[string]struct{}, len(s.Mappings))
	for i, m := range s.Mappings {
		norm := domain.NormalizeIdentifier(m.RawIdentifier)
		if norm == "" {
			return fmt.Errorf("mapping %d: empty raw_identifier", i)
		}
		if m.StandardCode == "" {
			return fmt.Errorf("mapping %q: empty standard_code", m.RawIdentifier)
		}
		if m.CanonicalUnit == "" {
			return fmt.Errorf("mapping %q: empty canonical_unit", m.RawIdentifier)
		}
		switch m.Namespace {
		case domain.NamespaceCF, domain.NamespaceBODC, domain.NamespaceCustom:
		default:
			return fmt.Errorf("mapping %q: unknown namespace %q", m.RawIdentifier, m.Namespace)
		}
		if _, dup := seen[norm]; dup {
			return fmt.Errorf("duplicate raw_identifier %q", norm)
		}
		seen[norm] = struct{}{}
	}

	return nil
}
