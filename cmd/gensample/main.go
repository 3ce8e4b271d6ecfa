// Command gensample writes a small, deterministic set of observation files
// for local runs and test fixtures: a mooring CSV with a metadata sidecar,
// a bare CSV exercising the heuristic resolution tiers, and a gridded JSON
// container. The generated values are seeded, so regenerating produces
// byte-identical fixtures.
//
// Usage:
//
//	go run ./cmd/gensample -out data/sample
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var baseTime = time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for sample files")
	rows := flag.Int("rows", 48, "data rows per tabular file")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(7))

	if err := writeMooringCSV(*out, *rows, rng); err != nil {
		return fmt.Errorf("mooring csv: %w", err)
	}
	if err := writeHeuristicCSV(*out, *rows, rng); err != nil {
		return fmt.Errorf("heuristic csv: %w", err)
	}
	if err := writeSSTGrid(*out, rng); err != nil {
		return fmt.Errorf("sst grid: %w", err)
	}

	log.Printf("wrote sample files to %s", *out)
	return nil
}

// writeMooringCSV emits a fixed-position mooring export: numeric time with
// declared units, no coordinate columns, declared standard names, and a QC
// side channel that marks a few cells missing.
func writeMooringCSV(dir string, rows int, rng *rand.Rand) error {
	path := filepath.Join(dir, "maria_island_mooring.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "depth", "var_temp", "var_temp_qc", "var_psal"}); err != nil {
		return err
	}
	// Days since 1950-01-01 for 2023-06-01, hourly steps.
	startDay := baseTime.Sub(time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)).Hours() / 24
	for i := 0; i < rows; i++ {
		qc := "1"
		if i%17 == 0 {
			qc = "9"
		}
		rec := []string{
			strconv.FormatFloat(startDay+float64(i)/24, 'f', 6, 64),
			"20.0",
			fmt.Sprintf("%.3f", 13.0+rng.Float64()),
			qc,
			fmt.Sprintf("%.3f", 35.0+rng.Float64()*0.2),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	sidecar := map[string]any{
		"source_id": "imos-mooring-maria-island",
		"variables": map[string]string{
			"var_temp": "sea_water_temperature",
			"var_psal": "sea_water_practical_salinity",
		},
		"time_units": "days since 1950-01-01 00:00:00",
		"latitude":   -42.5978,
		"longitude":  148.2332,
		"site_name":  "Maria Island",
	}
	return writeJSON(path+".meta.json", sidecar)
}

// writeHeuristicCSV emits a file with no sidecar: ISO timestamps, inline
// coordinates (one row with a flipped hemisphere sign), headers resolvable
// only by keyword, and an ambiguous "ph" column whose values sit in the
// acidity band.
func writeHeuristicCSV(dir string, rows int, rng *rand.Rand) error {
	path := filepath.Join(dir, "shelf_survey.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "lat", "lon", "bottom_temp", "turbidity_ntu", "ph"}); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		lat := -43.0 + rng.Float64()*2
		if i == 3 {
			lat = -lat // exercises the sign correction
		}
		temp := fmt.Sprintf("%.3f", 12.0+rng.Float64()*2)
		if i%19 == 0 {
			temp = "-999" // fill sentinel
		}
		rec := []string{
			baseTime.Add(time.Duration(i) * 30 * time.Minute).Format(time.RFC3339),
			fmt.Sprintf("%.4f", lat),
			fmt.Sprintf("%.4f", 145.0+rng.Float64()*3),
			temp,
			fmt.Sprintf("%.2f", rng.Float64()*12),
			fmt.Sprintf("%.2f", 7.8+rng.Float64()*0.4),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeSSTGrid emits a 4-time x 6-lat x 8-lon surface temperature grid that
// straddles the study-area boundary, with a sprinkling of fill cells.
func writeSSTGrid(dir string, rng *rand.Rand) error {
	const (
		nt, nlat, nlon = 4, 6, 8
		fill           = -9999.0
	)

	times := make([]float64, nt)
	for i := range times {
		// Hours since 2023-06-01.
		times[i] = float64(i * 6)
	}
	lats := make([]float64, nlat)
	for i := range lats {
		lats[i] = -46.0 + float64(i)*1.5 // -46 .. -38.5, edges outside
	}
	lons := make([]float64, nlon)
	for i := range lons {
		lons[i] = 142.0 + float64(i) // 142 .. 149, one column outside
	}

	values := make([]any, 0, nt*nlat*nlon)
	for t := 0; t < nt; t++ {
		for la := 0; la < nlat; la++ {
			for lo := 0; lo < nlon; lo++ {
				if rng.Float64() < 0.05 {
					values = append(values, fill)
					continue
				}
				v := 13.0 + 2.0*math.Sin(float64(t))*rng.Float64()
				values = append(values, math.Round(v*1000)/1000)
			}
		}
	}

	doc := map[string]any{
		"coords": map[string]any{
			"time": map[string]any{
				"values": times,
				"units":  "hours since 2023-06-01 00:00:00",
			},
			"latitude":  map[string]any{"values": lats},
			"longitude": map[string]any{"values": lons},
		},
		"variables": map[string]any{
			"analysed_sst": map[string]any{
				"dims":          []string{"time", "latitude", "longitude"},
				"standard_name": "sea_surface_temperature",
				"units":         "degC",
				"fill_value":    fill,
				"values":        values,
			},
		},
	}
	return writeJSON(filepath.Join(dir, "shelf_sst.grid.json"), doc)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
