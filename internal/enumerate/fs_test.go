package enumerate

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSources_ClassifiesByExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "mooring.csv", "time,sea_temp\n")
	write(t, dir, "sst_field.grid.json", "{}")
	write(t, dir, "notes.txt", "ignore me")
	write(t, dir, "loose.json", "{}") // not a grid container

	sources, err := Sources(dir, testLogger())
	require.NoError(t, err)

	require.Len(t, sources, 2)
	assert.Equal(t, domain.SourceTabular, sources[0].Kind)
	assert.Equal(t, "mooring.csv", sources[0].ID)
	assert.Equal(t, domain.SourceGrid, sources[1].Kind)
}

func TestSources_RecursesAndSorts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b/late.csv", "time\n")
	write(t, dir, "a/early.csv", "time\n")

	sources, err := Sources(dir, testLogger())
	require.NoError(t, err)

	require.Len(t, sources, 2)
	assert.Equal(t, "a/early.csv", sources[0].ID)
	assert.Equal(t, "b/late.csv", sources[1].ID)
}

func TestSources_LoadsSidecar(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "mooring.csv", "time,var_1\n")
	write(t, dir, "mooring.csv.meta.json", `{
		"source_id": "imos-mooring-07",
		"variables": {"var_1": "sea_water_temperature"},
		"time_units": "days since 1950-01-01",
		"site_name": "Maria Island"
	}`)

	sources, err := Sources(dir, testLogger())
	require.NoError(t, err)

	require.Len(t, sources, 1)
	src := sources[0]
	assert.Equal(t, "imos-mooring-07", src.ID)
	require.NotNil(t, src.Declared)
	assert.Equal(t, "sea_water_temperature", src.Declared.StandardName("var_1"))
	assert.Equal(t, "days since 1950-01-01", src.Declared.TimeUnits)
	assert.Equal(t, "Maria Island", src.Declared.SiteName)
}

func TestSources_MalformedSidecarFails(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "mooring.csv", "time\n")
	write(t, dir, "mooring.csv.meta.json", "{broken")

	_, err := Sources(dir, testLogger())
	require.Error(t, err)
}

func TestSources_MissingDirFails(t *testing.T) {
	_, err := Sources(filepath.Join(t.TempDir(), "absent"), testLogger())
	require.Error(t, err)
}
