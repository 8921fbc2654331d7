package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TargetColumn names the label column in CSV datasets.
const TargetColumn = "target"

type Example struct {
	Features FeatureVector `json:"features"`
	Target   float64       `json:"target"`
}

// DefaultDataset is the built-in training set used when no dataset file is
// given.
func DefaultDataset() []Example {
	return []Example{
		{Features: FeatureVector{Progress: 75, DaysRemaining: 10, DaysWorked: 30, AvgRating: 4.5}, Target: 4.6},
		{Features: FeatureVector{Progress: 50, DaysRemaining: 20, DaysWorked: 15, AvgRating: 3.8}, Target: 4.1},
	}
}

// Matrix splits examples into a feature matrix and target vector laid out
// in FeatureNames order.
func Matrix(examples []Example) ([][]float64, []float64) {
	features := make([][]float64, len(examples))
	targets := make([]float64, len(examples))
	for i, ex := range examples {
		features[i] = ex.Features.Slice()
		targets[i] = ex.Target
	}
	return features, targets
}

func LoadCSVFile(path string) ([]Example, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadCSV(file)
}

// LoadCSV reads rows of progress,daysRemaining,daysWorked,avgRating,target.
// A header row is optional; when present, columns are matched by name in any
// order. A leading byte order mark is stripped and UTF-16 input decoded.
func LoadCSV(r io.Reader) ([]Example, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(FeatureNames) + 1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	columns := defaultColumns()
	start := 0
	if isHeader(records[0]) {
		columns, err = headerColumns(records[0])
		if err != nil {
			return nil, err
		}
		start = 1
	}

	examples := make([]Example, 0, len(records)-start)
	for line, record := range records[start:] {
		values := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", line+start+1, i+1, err)
			}
			if !isFinite(v) {
				return nil, fmt.Errorf("row %d column %d: value is not finite", line+start+1, i+1)
			}
			values[i] = v
		}
		row := make([]float64, len(FeatureNames))
		for i := range FeatureNames {
			row[i] = values[columns[i]]
		}
		fv, err := FeatureVectorFromSlice(row)
		if err != nil {
			return nil, err
		}
		examples = append(examples, Example{Features: fv, Target: values[columns[len(FeatureNames)]]})
	}
	if len(examples) == 0 {
		return nil, ErrEmptyDataset
	}
	return examples, nil
}

func defaultColumns() []int {
	columns := make([]int, len(FeatureNames)+1)
	for i := range columns {
		columns[i] = i
	}
	return columns
}

func isHeader(record []string) bool {
	for _, field := range record {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return true
		}
	}
	return false
}

// headerColumns maps each feature (and the target, last) to its column.
func headerColumns(header []string) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(name))] = i
	}
	wanted := append(append([]string(nil), FeatureNames...), TargetColumn)
	columns := make([]int, len(wanted))
	for i, name := range wanted {
		pos, ok := positions[strings.ToLower(name)]
		if !ok {
			return nil, errors.New("csv header missing column " + name)
		}
		columns[i] = pos
	}
	return columns, nil
}
