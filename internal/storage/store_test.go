package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/fopdtsim/internal/process"
)

func sampleRun(id string, at time.Time) (RunMetadata, Series) {
	meta := RunMetadata{
		ID:        id,
		Timestamp: at,
		Backend:   "emulated",
		Tags:      Tags{SP: "SP", PV: "PV", CV: "CV"},
		Period:    100 * time.Millisecond,
		Seed:      42,
		Params:    process.Params{Gain: 2, TimeConstant: 50, DeadTime: 10},
		ScanCount: 3,
		Metrics:   map[string]float64{"iae": 1.5},
	}
	series := Series{
		CV: []float64{10, 10, 10},
		SP: []float64{25, 25, 25},
		PV: []float64{0, 0.5, 1.25},
	}
	return meta, series
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta, series := sampleRun("run1", time.Now())
	dir, err := st.Save(meta, series)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if dir != filepath.Join(tmpDir, "run1") {
		t.Errorf("unexpected run dir %s", dir)
	}

	loaded, err := st.Load("run1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Seed != 42 {
		t.Errorf("expected seed 42, got %d", loaded.Seed)
	}
	if loaded.Metrics["iae"] != 1.5 {
		t.Errorf("expected iae 1.5, got %f", loaded.Metrics["iae"])
	}
	if loaded.Params.TimeConstant != 50 {
		t.Errorf("expected time constant 50, got %f", loaded.Params.TimeConstant)
	}

	got, err := st.LoadSeries("run1")
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", got.Len())
	}
	if got.PV[2] != 1.25 {
		t.Errorf("expected pv 1.25, got %f", got.PV[2])
	}
}

func TestStoreSaveRequiresID(t *testing.T) {
	st := New(t.TempDir())
	_, series := sampleRun("", time.Now())
	if _, err := st.Save(RunMetadata{}, series); err != ErrNoID {
		t.Errorf("expected ErrNoID, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list of empty store failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	now := time.Now()
	for i, id := range []string{"old", "new"} {
		meta, series := sampleRun(id, now.Add(time.Duration(i)*time.Minute))
		if _, err := st.Save(meta, series); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" {
		t.Errorf("expected newest first, got %s", runs[0].ID)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	_, series := sampleRun("x", time.Now())
	var buf bytes.Buffer
	if err := WriteCSV(&buf, series, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "scan,time_s,cv,sp,pv\n0,0.100000,10,25,0\n") {
		t.Errorf("unexpected csv:\n%s", buf.String())
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != series.Len() || got.PV[1] != 0.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"missing column": "cv,sp\n1,2\n",
		"bad number":     "cv,sp,pv\n1,2,x\n",
		"short record":   "cv,sp,pv\n1,2\n",
	}
	for name, in := range tests {
		if _, err := ReadCSV(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	got, err := ReadCSV(strings.NewReader("pv,cv,sp\n3,1,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got.CV[0] != 1 || got.SP[0] != 2 || got.PV[0] != 3 {
		t.Errorf("columns should be located by name: %+v", got)
	}
}

func TestExportJSON(t *testing.T) {
	meta, series := sampleRun("exp", time.Now())
	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, series); err != nil {
		t.Fatal(err)
	}
	var doc Export
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Run.ID != "exp" || len(doc.Series.PV) != 3 {
		t.Errorf("unexpected export %+v", doc)
	}
}
