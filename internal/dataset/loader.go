// Package dataset loads labeled patient datasets from CSV or JSON files for
// offline training runs.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"oncorisk/internal/patient"
)

// Labeled is the JSON dataset layout: records with aligned binary labels.
type Labeled struct {
	Records []patient.Record `json:"records"`
	Labels  []int            `json:"labels"`
}

// Load dispatches on the file extension.
func Load(path string) ([]patient.Record, []int, error) {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return LoadCSV(path)
	case strings.HasSuffix(path, ".json"):
		return LoadJSON(path)
	default:
		return nil, nil, fmt.Errorf("cannot determine dataset format for %s (want .csv or .json)", path)
	}
}

// LoadJSON reads a Labeled document.
func LoadJSON(path string) ([]patient.Record, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var ds Labeled
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return nil, nil, fmt.Errorf("decode dataset: %w", err)
	}
	if len(ds.Records) != len(ds.Labels) {
		return nil, nil, fmt.Errorf("dataset has %d records but %d labels", len(ds.Records), len(ds.Labels))
	}
	return ds.Records, ds.Labels, nil
}

// LoadCSV reads a headered CSV. Recognized columns: age, sex, smoking,
// drinking, family_history, exercise, height_cm, weight_kg, label. Empty
// cells mean the field is absent.
func LoadCSV(path string) ([]patient.Record, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["label"]; !ok {
		return nil, nil, fmt.Errorf("dataset %s has no label column", path)
	}

	var (
		records []patient.Record
		labels  []int
		line    = 1
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", line, err)
		}
		line++

		rec, label, err := parseRow(cols, row)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
		labels = append(labels, label)
	}
	return records, labels, nil
}

func parseRow(cols map[string]int, row []string) (patient.Record, int, error) {
	var rec patient.Record

	cell := func(name string) (string, bool) {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[idx])
		return v, v != ""
	}

	if v, ok := cell("age"); ok {
		age, err := strconv.Atoi(v)
		if err != nil {
			return rec, 0, fmt.Errorf("age %q: %w", v, err)
		}
		rec.Age = patient.IntPtr(age)
	}
	if v, ok := cell("sex"); ok {
		rec.Sex = patient.Sex(strings.ToLower(v))
	}
	for name, dst := range map[string]**int{
		"smoking":  &rec.Smoking,
		"drinking": &rec.Drinking,
	} {
		if v, ok := cell(name); ok {
			habit, err := parseHabit(v)
			if err != nil {
				return rec, 0, fmt.Errorf("%s %q: %w", name, v, err)
			}
			*dst = patient.IntPtr(habit)
		}
	}
	if v, ok := cell("family_history"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rec, 0, fmt.Errorf("family_history %q: %w", v, err)
		}
		rec.FamilyHistory = patient.BoolPtr(b)
	}
	if v, ok := cell("exercise"); ok {
		rec.Exercise = patient.ExercisePtr(patient.Exercise(strings.ToLower(v)))
	}
	for name, dst := range map[string]**float64{
		"height_cm": &rec.HeightCm,
		"weight_kg": &rec.WeightKg,
	} {
		if v, ok := cell(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return rec, 0, fmt.Errorf("%s %q: %w", name, v, err)
			}
			*dst = patient.FloatPtr(f)
		}
	}

	v, ok := cell("label")
	if !ok {
		return rec, 0, fmt.Errorf("missing label")
	}
	label, err := strconv.Atoi(v)
	if err != nil || (label != 0 && label != 1) {
		return rec, 0, fmt.Errorf("label %q must be 0 or 1", v)
	}
	return rec, label, nil
}

func parseHabit(v string) (int, error) {
	switch strings.ToLower(v) {
	case "0", "never":
		return patient.HabitNever, nil
	case "1", "former":
		return patient.HabitFormer, nil
	case "2", "current":
		return patient.HabitCurrent, nil
	default:
		return 0, fmt.Errorf("unknown habit value")
	}
}
