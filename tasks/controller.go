// Package tasks wires datasets and oracles into benchmark tasks.
package tasks

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/designbench/designbench/datasets"
	"github.com/designbench/designbench/oracle"
)

// Controller is a benchmark task over flattened controller parameter
// vectors: the offline dataset pairs parameter vectors with the returns
// they achieved, and the oracle re-scores new vectors by simulated
// rollout.
type Controller struct {
	ObsDim    int
	ActionDim int
	HiddenDim int

	Data   *datasets.Dataset
	Oracle *oracle.Oracle
}

// ControllerConfig parameterizes LoadController. Zero dims fall back to
// the Hopper-style defaults the static files were collected with.
type ControllerConfig struct {
	ObsDim    int
	ActionDim int
	HiddenDim int
	NewEnv    oracle.Factory
}

const (
	defaultObsDim    = 11
	defaultActionDim = 3
	defaultHiddenDim = 64
)

// LoadController reads the two whitespace-delimited numeric text files
// holding parameter vectors (x) and returns (y), builds the offline
// dataset, and attaches a rollout oracle. Values are cast to float32
// and y is reshaped to a column vector.
func LoadController(xPath, yPath string, cfg ControllerConfig) (*Controller, error) {
	if cfg.ObsDim == 0 {
		cfg.ObsDim = defaultObsDim
	}
	if cfg.ActionDim == 0 {
		cfg.ActionDim = defaultActionDim
	}
	if cfg.HiddenDim == 0 {
		cfg.HiddenDim = defaultHiddenDim
	}

	x, err := loadTable(xPath)
	if err != nil {
		return nil, err
	}
	yFlat, err := loadColumn(yPath)
	if err != nil {
		return nil, err
	}
	y, err := datasets.NewF32(yFlat, len(yFlat), 1)
	if err != nil {
		return nil, fmt.Errorf("reshape %s: %w", yPath, err)
	}

	orc := oracle.New(cfg.ObsDim, cfg.ActionDim, cfg.HiddenDim, cfg.NewEnv)
	if want, got := orc.TotalSize(), x.RowSize(); want != got {
		return nil, fmt.Errorf("%s: parameter vectors have %d elements, policy layout wants %d",
			xPath, got, want)
	}

	ds, err := datasets.New(x, y)
	if err != nil {
		return nil, err
	}
	return &Controller{
		ObsDim:    cfg.ObsDim,
		ActionDim: cfg.ActionDim,
		HiddenDim: cfg.HiddenDim,
		Data:      ds,
		Oracle:    orc,
	}, nil
}

// loadTable parses a whitespace-delimited numeric file into a (rows,
// cols) array. Every non-empty line must carry the same number of
// values.
func loadTable(path string) (*datasets.Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var flat []float32
	cols := -1
	rows := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if cols == -1 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("%s: row %d has %d values, expected %d",
				path, rows, len(fields), cols)
		}
		for _, s := range fields {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: parse %q: %w", path, rows, s, err)
			}
			flat = append(flat, float32(v))
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	return datasets.NewF32(flat, rows, cols)
}

// loadColumn parses a whitespace-delimited numeric file into one flat
// column of values, regardless of the file's line layout.
func loadColumn(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var vals []float32
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 32)
		if err != nil {
			return nil, fmt.Errorf("%s: parse %q: %w", path, sc.Text(), err)
		}
		vals = append(vals, float32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: no values", path)
	}
	return vals, nil
}
