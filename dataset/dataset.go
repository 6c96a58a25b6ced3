// Package dataset loads the numeric train/test arrays consumed by the
// trainer. Every row is features followed by the target in the last column.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/pkg/errors"
)

// LoadCSV reads a numeric CSV file into a matrix. When header is true the
// first record is skipped. Empty lines are ignored; every other record must
// have the same number of numeric fields.
func LoadCSV(path string, header bool) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	m, err := ReadCSV(f, header)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", path)
	}
	return m, nil
}

// ReadCSV parses numeric CSV records from r.
func ReadCSV(r io.Reader, header bool) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	var data []float64
	cols := -1
	rows := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if header && line == 1 {
			cols = len(rec)
			continue
		}
		if cols < 0 {
			cols = len(rec)
		}
		if len(rec) != cols {
			return nil, errors.NewDimensionError(fmt.Sprintf("ReadCSV line %d", line), cols, len(rec), 1)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.NewValueError("ReadCSV",
					fmt.Sprintf("line %d column %d: %q is not a number", line, j+1, field))
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 || cols == 0 {
		return nil, errors.NewModelError("ReadCSV", "empty data", errors.ErrEmptyData)
	}
	return mat.NewDense(rows, cols, data), nil
}

// SplitFeaturesTarget splits m into all-but-last columns and the last column.
func SplitFeaturesTarget(m mat.Matrix) (X, y *mat.Dense, err error) {
	r, c := m.Dims()
	if r == 0 {
		return nil, nil, errors.NewModelError("SplitFeaturesTarget", "empty data", errors.ErrEmptyData)
	}
	if c < 2 {
		return nil, nil, errors.NewValueError("SplitFeaturesTarget",
			fmt.Sprintf("need at least one feature column and one target column, got %d columns", c))
	}
	d := mat.DenseCopyOf(m)
	X = mat.DenseCopyOf(d.Slice(0, r, 0, c-1))
	y = mat.DenseCopyOf(d.Slice(0, r, c-1, c))
	return X, y, nil
}

// CheckCompatible verifies that train and test arrays have the same width.
func CheckCompatible(train, test mat.Matrix) error {
	_, trainCols := train.Dims()
	_, testCols := test.Dims()
	if trainCols != testCols {
		return errors.NewDimensionError("CheckCompatible", trainCols, testCols, 1)
	}
	return nil
}
