package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
)

type ExportData struct {
	Cooling    string             `json:"cooling"`
	Controller string             `json:"controller"`
	Zones      int                `json:"zones"`
	Dt         float64            `json:"dt"`
	Current    float64            `json:"current"`
	Steps      int                `json:"steps"`
	History    []therm.Record     `json:"history"`
	Metrics    map[string]float64 `json:"metrics"`
	Warnings   sim.Warnings       `json:"warnings"`
}

func ExportJSON(w io.Writer, cooling, controller string, zones int, dt, current float64, result *sim.Result) error {
	data := ExportData{
		Cooling:    cooling,
		Controller: controller,
		Zones:      zones,
		Dt:         dt,
		Current:    current,
		Steps:      len(result.History),
		History:    result.History,
		Metrics:    result.Metrics,
		Warnings:   result.Warnings,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path, cooling, controller string, zones int, dt, current float64, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, cooling, controller, zones, dt, current, result)
}
