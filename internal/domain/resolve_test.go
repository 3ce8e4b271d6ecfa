package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCatalog is an in-memory CatalogStore with insert-if-absent semantics.
type mockCatalog struct {
	mu        sync.Mutex
	entries   map[string]ParameterMapping
	created   []ParameterMapping
	lookupErr error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{entries: make(map[string]ParameterMapping)}
}

func (m *mockCatalog) Lookup(_ context.Context, raw string) (ParameterMapping, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return ParameterMapping{}, false, m.lookupErr
	}
	pm, ok := m.entries[raw]
	return pm, ok, nil
}

func (m *mockCatalog) GetOrCreate(_ context.Context, mapping ParameterMapping) (ParameterMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[mapping.RawIdentifier]; ok {
		return existing, nil
	}
	m.entries[mapping.RawIdentifier] = mapping
	m.created = append(m.created, mapping)
	return mapping, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_DeclaredStandardNameWins(t *testing.T) {
	r := NewResolver(newMockCatalog(), discardLogger())

	// Raw identifier and value range both scream pH, but the dataset
	// declares phosphate; the declaration is authoritative.
	sample := []float64{7.9, 8.0, 8.1, 8.05}
	res, err := r.Resolve(context.Background(), "ph",
		"mole_concentration_of_phosphate_in_sea_water", sample)

	require.NoError(t, err)
	assert.Equal(t, "PHOS", res.Code)
	assert.Equal(t, NamespaceCF, res.Namespace)
	assert.Equal(t, TierDeclared, res.Tier)
	assert.Empty(t, res.Warning)
}

func TestResolve_UnknownDeclarationFallsThrough(t *testing.T) {
	cat := newMockCatalog()
	cat.entries["seatemp"] = ParameterMapping{
		RawIdentifier: "seatemp", StandardCode: "TEMP",
		Namespace: NamespaceBODC, CanonicalUnit: "degC",
	}
	r := NewResolver(cat, discardLogger())

	res, err := r.Resolve(context.Background(), "SeaTemp", "not_a_real_standard_name", nil)

	require.NoError(t, err)
	assert.Equal(t, "TEMP", res.Code)
	assert.Equal(t, TierCatalog, res.Tier)
}

func TestResolve_CatalogLookupIsCaseInsensitive(t *testing.T) {
	cat := newMockCatalog()
	cat.entries["psal_adjusted"] = ParameterMapping{
		RawIdentifier: "psal_adjusted", StandardCode: "PSAL",
		Namespace: NamespaceBODC, CanonicalUnit: "1",
	}
	r := NewResolver(cat, discardLogger())

	res, err := r.Resolve(context.Background(), "  PSAL_Adjusted ", "", nil)

	require.NoError(t, err)
	assert.Equal(t, "PSAL", res.Code)
	assert.Equal(t, TierCatalog, res.Tier)
}

func TestResolve_KeywordHeuristic(t *testing.T) {
	r := NewResolver(newMockCatalog(), discardLogger())

	tests := []struct {
		identifier string
		code       string
	}{
		{"Bottom_Temp_90m", "TEMP"},
		{"salinity_ctd", "PSAL"},
		{"chl_a_fluo", "CPHL"},
		{"turbidity_ntu", "TURB"},
		{"NO3_conc", "NTRA"},
		{"water_depth_m", "DEPTH"},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tt.identifier, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, TierKeyword, res.Tier)
		})
	}
}

func TestResolve_AmbiguousDistribution(t *testing.T) {
	r := NewResolver(newMockCatalog(), discardLogger())
	ctx := context.Background()

	t.Run("90/10 split picks dominant range", func(t *testing.T) {
		sample := []float64{8.0, 8.1, 7.9, 8.2, 8.0, 8.1, 7.8, 8.3, 8.05, 0.5}
		res, err := r.Resolve(ctx, "ph", "", sample)
		require.NoError(t, err)
		assert.Equal(t, "PHXX", res.Code)
		assert.Equal(t, TierDistribution, res.Tier)
		assert.Empty(t, res.Warning)
	})

	t.Run("dominant nutrient range picks phosphate", func(t *testing.T) {
		sample := []float64{0.4, 0.8, 1.2, 0.1, 2.3, 0.9, 1.8, 0.2, 0.6, 8.1}
		res, err := r.Resolve(ctx, "ph", "", sample)
		require.NoError(t, err)
		assert.Equal(t, "PHOS", res.Code)
		assert.Empty(t, res.Warning)
	})

	t.Run("50/50 split defaults with warning", func(t *testing.T) {
		sample := []float64{8.0, 8.1, 7.9, 8.2, 0.4, 0.8, 1.2, 0.1}
		res, err := r.Resolve(ctx, "ph", "", sample)
		require.NoError(t, err)
		assert.Equal(t, "PHXX", res.Code)
		assert.NotEmpty(t, res.Warning)
		assert.Contains(t, strings.ToLower(res.Warning), "ambiguous")
	})

	t.Run("empty sample defaults with warning", func(t *testing.T) {
		res, err := r.Resolve(ctx, "ph", "", nil)
		require.NoError(t, err)
		assert.Equal(t, "PHXX", res.Code)
		assert.NotEmpty(t, res.Warning)
	})
}

func TestResolve_FallbackCreatesCustomEntry(t *testing.T) {
	cat := newMockCatalog()
	r := NewResolver(cat, discardLogger())
	ctx := context.Background()

	res, err := r.Resolve(ctx, "Widget Count", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "WIDGET_COUNT", res.Code)
	assert.Equal(t, NamespaceCustom, res.Namespace)
	assert.Equal(t, "unknown", res.Unit)
	assert.Equal(t, TierFallback, res.Tier)
	require.Len(t, cat.created, 1)
	assert.Equal(t, "widget count", cat.created[0].RawIdentifier)

	// Repeat identifiers hit the catalog tier instead of re-minting.
	res2, err := r.Resolve(ctx, "widget count", "", nil)
	require.NoError(t, err)
	assert.Equal(t, res.Code, res2.Code)
	assert.Equal(t, TierCatalog, res2.Tier)
	assert.Len(t, cat.created, 1)
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(newMockCatalog(), discardLogger())
	ctx := context.Background()
	sample := []float64{8.0, 0.4, 8.1, 0.5}

	first, err := r.Resolve(ctx, "ph", "", sample)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "ph", "", sample)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_CatalogErrorPropagates(t *testing.T) {
	cat := newMockCatalog()
	cat.lookupErr = errors.New("connection refused")
	r := NewResolver(cat, discardLogger())

	_, err := r.Resolve(context.Background(), "seatemp", "", nil)
	require.Error(t, err)
}
