// Package storage persists completed runs on the filesystem. Each run
// gets its own directory holding metadata.json and history.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
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
	Cooling    string             `json:"cooling"`
	Controller string             `json:"controller"`
	Zones      int                `json:"zones"`
	Steps      int                `json:"steps"`
	Dt         float64            `json:"dt"`
	Current    float64            `json:"current"`
	TMax       float64            `json:"t_max"`
	Metrics    map[string]float64 `json:"metrics"`
	Warnings   sim.Warnings       `json:"warnings"`
}

// Save writes one run directory and returns the run ID.
func (s *Store) Save(cooling, controller string, zones int, dt, current, tMax float64, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", cooling, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Timestamp:  time.Now(),
		Cooling:    cooling,
		Controller: controller,
		Zones:      zones,
		Steps:      len(result.History),
		Dt:         dt,
		Current:    current,
		TMax:       tMax,
		Metrics:    result.Metrics,
		Warnings:   result.Warnings,
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

	if err := WriteHistoryCSV(filepath.Join(runDir, "history.csv"), zones, result.History); err != nil {
		return "", err
	}
	return runID, nil
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

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}

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

// LoadHistory reads a run's records back. Temperatures and generation
// rates round-trip exactly through the CSV encoding.
func (s *Store) LoadHistory(runID string) ([]therm.Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "history.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []therm.Record{}, nil
	}

	// header: step,time,command,source,fallback,t0..tN-1,q0..qN-1
	zones := (len(rows[0]) - 5) / 2
	history := make([]therm.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != 5+2*zones {
			continue
		}
		var rec therm.Record
		rec.Step, err = strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		rec.Time, _ = strconv.ParseFloat(row[1], 64)
		cmd, _ := strconv.ParseFloat(row[2], 64)
		rec.Command = therm.Command(cmd)
		rec.Source = therm.HeatSource(row[3])
		rec.Fallback = row[4] == "true"
		rec.Temps = make(therm.Temps, zones)
		rec.Generation = make([]float64, zones)
		for z := 0; z < zones; z++ {
			rec.Temps[z], _ = strconv.ParseFloat(row[5+z], 64)
			rec.Generation[z], _ = strconv.ParseFloat(row[5+zones+z], 64)
		}
		history = append(history, rec)
	}
	return history, nil
}

// WriteHistoryCSV writes records in the store's CSV layout. Floats use
// the shortest exact representation so LoadHistory round-trips.
func WriteHistoryCSV(path string, zones int, history []therm.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"step", "time", "command", "source", "fallback"}
	for z := 0; z < zones; z++ {
		header = append(header, fmt.Sprintf("t%d", z))
	}
	for z := 0; z < zones; z++ {
		header = append(header, fmt.Sprintf("q%d", z))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range history {
		row := []string{
			strconv.Itoa(rec.Step),
			strconv.FormatFloat(rec.Time, 'g', -1, 64),
			strconv.FormatFloat(float64(rec.Command), 'g', -1, 64),
			string(rec.Source),
			strconv.FormatBool(rec.Fallback),
		}
		for _, t := range rec.Temps {
			row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
		}
		for _, q := range rec.Generation {
			row = append(row, strconv.FormatFloat(q, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
