package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/experiment"
)

type ExportData struct {
	Name     string               `json:"name,omitempty"`
	Database string               `json:"database"`
	Method   string               `json:"method"`
	Steps    int                  `json:"steps"`
	Species  []string             `json:"species"`
	Times    []float64            `json:"times"`
	Amounts  [][]float64          `json:"amounts"`
	Outputs  map[string][]float64 `json:"outputs,omitempty"`
	Drift    map[string]float64   `json:"drift"`
	Metrics  map[string]float64   `json:"metrics,omitempty"`
}

// ExportJSON writes a run as a single indented JSON document.
func ExportJSON(w io.Writer, cfg *config.Config, result *experiment.Result) error {
	data := ExportData{
		Name:     cfg.Name,
		Database: cfg.Database,
		Method:   cfg.Solver.Method,
		Steps:    result.Steps,
		Species:  result.Species,
		Times:    result.Times,
		Amounts:  result.Amounts,
		Drift:    make(map[string]float64, len(result.Drift)),
		Metrics:  result.Metrics,
	}
	for j, d := range result.Drift {
		data.Drift[result.Elements[j]] = d
	}
	if len(result.OutputNames) > 0 {
		data.Outputs = make(map[string][]float64, len(result.OutputNames))
		for _, q := range result.OutputNames {
			series, err := result.OutputSeries(q)
			if err != nil {
				return err
			}
			data.Outputs[q] = series
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
