package storage

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/experiment"
)

func sampleResult() *experiment.Result {
	return &experiment.Result{
		Species:     []string{"A(g)", "B(g)"},
		Elements:    []string{"X"},
		OutputNames: []string{"n[A(g)]"},
		Times:       []float64{0, 0.5, 1},
		Amounts:     [][]float64{{1, 0}, {0.6, 0.4}, {0.35, 0.65}},
		Outputs:     [][]float64{{1}, {0.6}, {0.35}},
		Steps:       2,
		Drift:       []float64{1e-12},
		Metrics:     map[string]float64{"gibbs_change": -42},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.GetPreset("carbonate", "dissolution")
	runID, err := st.Save(cfg, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "co2_dissolution_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Database != "carbonate" || meta.Steps != 2 || meta.End != 1 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Drift["X"] != 1e-12 {
		t.Errorf("expected drift 1e-12, got %g", meta.Drift["X"])
	}
	if fp, _ := cfg.Fingerprint(); meta.Fingerprint != fp {
		t.Errorf("expected fingerprint %s, got %s", fp, meta.Fingerprint)
	}
	if meta.Metrics["gibbs_change"] != -42 {
		t.Errorf("expected stored metric, got %v", meta.Metrics)
	}

	saved, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if saved.Partition != cfg.Partition || saved.Solver.MaxStep != cfg.Solver.MaxStep {
		t.Errorf("config round trip mismatch: %+v", saved)
	}

	header, rows, err := st.LoadPath(runID)
	if err != nil {
		t.Fatalf("load path failed: %v", err)
	}
	if strings.Join(header, ",") != "time,A(g),B(g),n[A(g)]" {
		t.Errorf("unexpected header %v", header)
	}
	if len(rows) != 3 || rows[1][0] != 0.5 || rows[2][2] != 0.65 {
		t.Errorf("unexpected rows %v", rows)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("expected one listed run, got %+v", runs)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(t.TempDir() + "/missing")
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	if err := ExportJSON(&buf, cfg, sampleResult()); err != nil {
		t.Fatal(err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Steps != 2 || len(data.Times) != 3 || data.Method != "dopri5" {
		t.Errorf("unexpected export %+v", data)
	}
	if got := data.Outputs["n[A(g)]"]; len(got) != 3 || got[2] != 0.35 {
		t.Errorf("unexpected output series %v", got)
	}
}

func TestWriteSVG(t *testing.T) {
	header := []string{"time", "A(g)", "B(g)", "n[A(g)]"}
	res := sampleResult()
	rows := make([][]float64, len(res.Times))
	for k := range rows {
		rows[k] = append([]float64{res.Times[k]}, res.Amounts[k]...)
		rows[k] = append(rows[k], res.Outputs[k]...)
	}

	var buf bytes.Buffer
	if err := WriteSVG(&buf, header, rows, []int{1, 2}, 400, 200); err != nil {
		t.Fatal(err)
	}
	svg := buf.String()
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Error("expected a complete svg document")
	}
	if n := strings.Count(svg, "<path"); n != 2 {
		t.Errorf("expected 2 paths, got %d", n)
	}
	if !strings.Contains(svg, "B(g) [0, 0.65]") {
		t.Error("legend should show the range of B(g)")
	}

	if err := WriteSVG(&buf, header, rows, []int{0}, 400, 200); err == nil {
		t.Error("expected error for the time column")
	}
	if err := WriteSVG(&buf, header, rows[:1], []int{1}, 400, 200); err == nil {
		t.Error("expected error for a single row")
	}
}
