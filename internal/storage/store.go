package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	pathFile     = "path.csv"
)

// Store keeps one directory per run under baseDir.
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
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Database  string             `json:"database"`
	Timestamp time.Time          `json:"timestamp"`
	Method    string             `json:"method"`
	Start     float64            `json:"start"`
	End       float64            `json:"end"`
	Steps     int                `json:"steps"`
	Drift     map[string]float64 `json:"drift"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`

	// Fingerprint identifies runs of the same configuration.
	Fingerprint string `json:"fingerprint"`
}

// Save writes the config, metadata and recorded path of a run and
// returns the run ID.
func (s *Store) Save(cfg *config.Config, result *experiment.Result) (string, error) {
	fp, err := cfg.Fingerprint()
	if err != nil {
		return "", err
	}
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", slug(cfg), now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Name:      cfg.Name,
		Database:  cfg.Database,
		Timestamp: now,
		Method:    cfg.Solver.Method,
		Steps:     result.Steps,
		Drift:     make(map[string]float64, len(result.Drift)),
		Metrics:   result.Metrics,

		Fingerprint: fp,
	}
	if n := len(result.Times); n > 0 {
		meta.Start, meta.End = result.Times[0], result.Times[n-1]
	}
	for j, d := range result.Drift {
		meta.Drift[result.Elements[j]] = d
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}

	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, pathFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCSV(f, result); err != nil {
		return "", err
	}
	return runID, f.Close()
}

// WriteCSV writes one row per recorded time: time, species amounts and
// outputs.
func WriteCSV(w io.Writer, result *experiment.Result) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, result.Species...)
	header = append(header, result.OutputNames...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for k, t := range result.Times {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(t))
		for _, v := range result.Amounts[k] {
			row = append(row, formatFloat(v))
		}
		for _, v := range result.Outputs[k] {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

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
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadConfig returns the config a run was started with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// LoadPath reads back the CSV of a run as its header and rows.
func (s *Store) LoadPath(runID string) ([]string, [][]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, pathFile))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	rows := make([][]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s line %d: %w", pathFile, i+2, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return records[0], rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func slug(cfg *config.Config) string {
	name := cfg.Name
	if name == "" {
		name = filepath.Base(cfg.Database)
	}
	name = strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
