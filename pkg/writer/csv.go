// Package writer provides the CSV statistics writer and a JSON summary
// writer for simulation output.
package writer

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
)

// csvHeader is the fixed column layout, one row per step.
var csvHeader = []string{
	"step", "active", "unicellular", "multicellular",
	"mean_fitness", "mean_fitness_uni", "mean_fitness_multi",
	"coop_count", "defect_count", "merge_count", "split_count",
	"max_org_size",
}

// StatsCSVWriter streams per-step statistics rows.
type StatsCSVWriter struct {
	csv    *csv.Writer
	closer io.Closer
}

// NewStatsCSVWriter wraps w and writes the header row immediately.
func NewStatsCSVWriter(w io.Writer) (*StatsCSVWriter, error) {
	cw := &StatsCSVWriter{csv: csv.NewWriter(w)}
	if err := cw.csv.Write(csvHeader); err != nil {
		return nil, errors.Wrap(errors.CodeWriteError, "csv header", err)
	}
	return cw, nil
}

// CreateStatsCSVFile creates (or truncates) the file at path and returns a
// writer over it; Close releases the file.
func CreateStatsCSVFile(path string) (*StatsCSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeWriteError, "create csv file", err)
	}
	cw, err := NewStatsCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// WriteStep appends one row for the given statistics record.
func (w *StatsCSVWriter) WriteStep(s *model.StepStats) error {
	row := []string{
		strconv.FormatInt(s.Step, 10),
		strconv.FormatInt(s.Active, 10),
		strconv.FormatInt(s.Unicellular, 10),
		strconv.FormatInt(s.Multicellular, 10),
		strconv.FormatFloat(s.MeanFitness, 'g', -1, 64),
		strconv.FormatFloat(s.MeanFitnessUni, 'g', -1, 64),
		strconv.FormatFloat(s.MeanFitnessMulti, 'g', -1, 64),
		strconv.FormatInt(s.CoopCount, 10),
		strconv.FormatInt(s.DefectCount, 10),
		strconv.FormatInt(s.MergeCount, 10),
		strconv.FormatInt(s.SplitCount, 10),
		strconv.FormatInt(s.MaxOrgSize, 10),
	}
	if err := w.csv.Write(row); err != nil {
		return errors.Wrap(errors.CodeWriteError, "csv row", err)
	}
	return nil
}

// Flush writes any buffered rows through to the underlying writer.
func (w *StatsCSVWriter) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return errors.Wrap(errors.CodeWriteError, "csv flush", err)
	}
	return nil
}

// Close flushes and releases the underlying file, when one is owned.
func (w *StatsCSVWriter) Close() error {
	if err := w.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
