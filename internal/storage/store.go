// Package storage keeps finished runs on disk: one directory per run with
// metadata.json and series.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/fopdtsim/internal/process"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Backend    string             `json:"backend"`
	Address    string             `json:"address"`
	Unit       string             `json:"unit"`
	Tags       Tags               `json:"tags"`
	Period     time.Duration      `json:"period"`
	Integrator string             `json:"integrator"`
	Seed       uint64             `json:"seed"`
	Params     process.Params     `json:"params"`
	ScanCount  int                `json:"scan_count"`
	Ticks      int                `json:"ticks"`
	Failures   int                `json:"failures"`
	LastError  string             `json:"last_error,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

type Tags struct {
	SP string `json:"sp"`
	PV string `json:"pv"`
	CV string `json:"cv"`
}

// Series are the aligned CV/SP/PV samples of a run.
type Series struct {
	CV []float64 `json:"cv"`
	SP []float64 `json:"sp"`
	PV []float64 `json:"pv"`
}

func (s Series) Len() int { return min(len(s.CV), len(s.SP), len(s.PV)) }

var ErrNoID = errors.New("storage: run id is empty")

// Save writes meta and series under meta.ID and returns the run directory.
func (s *Store) Save(meta RunMetadata, series Series) (string, error) {
	if meta.ID == "" {
		return "", ErrNoID
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "series.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, series, meta.Period); err != nil {
		return "", err
	}
	return runDir, nil
}

// WriteCSV writes scan, time_s, cv, sp, pv rows.
func WriteCSV(out io.Writer, series Series, period time.Duration) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"scan", "time_s", "cv", "sp", "pv"}); err != nil {
		return err
	}
	for i := 0; i < series.Len(); i++ {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(float64(i+1)*period.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(series.CV[i], 'g', -1, 64),
			strconv.FormatFloat(series.SP[i], 'g', -1, 64),
			strconv.FormatFloat(series.PV[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadSeries(runID string) (Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "series.csv"))
	if err != nil {
		return Series{}, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV parses the format written by WriteCSV. Columns are located by
// header name, so files exported by other tools work if they carry cv, sp
// and pv columns.
func ReadCSV(in io.Reader) (Series, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return Series{}, err
	}
	if len(records) == 0 {
		return Series{}, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range []string{"cv", "sp", "pv"} {
		if _, ok := col[name]; !ok {
			return Series{}, fmt.Errorf("csv: missing %q column", name)
		}
	}

	var out Series
	for line, record := range records[1:] {
		var vals [3]float64
		for j, name := range []string{"cv", "sp", "pv"} {
			idx := col[name]
			if idx >= len(record) {
				return Series{}, fmt.Errorf("csv line %d: short record", line+2)
			}
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return Series{}, fmt.Errorf("csv line %d: %s: %w", line+2, name, err)
			}
			vals[j] = v
		}
		out.CV = append(out.CV, vals[0])
		out.SP = append(out.SP, vals[1])
		out.PV = append(out.PV, vals[2])
	}
	return out, nil
}

// Export is the JSON document written by ExportJSON.
type Export struct {
	Run    RunMetadata `json:"run"`
	Series Series      `json:"series"`
}

func ExportJSON(out io.Writer, meta RunMetadata, series Series) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(Export{Run: meta, Series: series})
}
