// Command validate checks a catalog seed file before it is deployed:
// structural integrity, quality-rule coverage for every standard code, and
// consistency between the seed and the built-in resolution heuristics. It
// never touches the database.
//
// Usage:
//
//	go run ./cmd/validate -seed config/catalog_seed.json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tidemark-obs/obs-ingest/internal/catalog"
	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	seedPath := flag.String("seed", "", "path to the catalog seed JSON file")
	flag.Parse()

	if *seedPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*seedPath))
}

func run(seedPath string) int {
	fmt.Println("=== Catalog Seed Validation ===")
	fmt.Println()

	seed, err := catalog.LoadSeed(seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	fmt.Printf("Seed version %d, %d mappings\n", seed.Version, len(seed.Mappings))

	phases := []*phase{
		validateRuleCoverage(seed),
		validateHeuristicConsistency(seed),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nSeed is valid.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateRuleCoverage confirms every non-custom standard code has a
// plausibility envelope. Custom codes legitimately fail open, but a curated
// code without a rule is almost always an oversight.
func validateRuleCoverage(seed catalog.Seed) *phase {
	p := &phase{name: "Phase 1: Quality Rule Coverage"}
	for _, m := range seed.Mappings {
		if m.Namespace == domain.NamespaceCustom {
			continue
		}
		if !domain.HasQualityRule(m.StandardCode) {
			p.errorf("mapping %q: code %s has no plausibility rule", m.RawIdentifier, m.StandardCode)
		}
	}
	return p
}

// validateHeuristicConsistency resolves each seed identifier through the
// heuristic tiers (no catalog, no declaration) and flags any identifier the
// keyword table would bind to a different code than the seed declares. Such
// a mismatch means files ingested before the seed was applied got a
// different identity than files ingested after.
func validateHeuristicConsistency(seed catalog.Seed) *phase {
	p := &phase{name: "Phase 2: Heuristic Consistency"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := domain.NewResolver(noopCatalog{}, logger)
	ctx := context.Background()

	for _, m := range seed.Mappings {
		res, err := resolver.Resolve(ctx, m.RawIdentifier, "", nil)
		if err != nil {
			p.errorf("mapping %q: heuristic resolution failed: %v", m.RawIdentifier, err)
			continue
		}
		if res.Tier == domain.TierKeyword && res.Code != m.StandardCode {
			p.errorf("mapping %q: seed says %s, keyword heuristic says %s",
				m.RawIdentifier, m.StandardCode, res.Code)
		}
	}
	return p
}

// noopCatalog makes the resolver run without persistence: lookups always
// miss and fallback creations are returned unstored.
type noopCatalog struct{}

func (noopCatalog) Lookup(context.Context, string) (domain.ParameterMapping, bool, error) {
	return domain.ParameterMapping{}, false, nil
}

func (noopCatalog) GetOrCreate(_ context.Context, m domain.ParameterMapping) (domain.ParameterMapping, error) {
	return m, nil
}
