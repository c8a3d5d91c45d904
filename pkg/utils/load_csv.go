package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadRows parses a CSV stream of numbers, one observation per record. A
// first record with no numeric field is treated as a header and skipped.
// Every record must have the same number of fields.
func ReadRows(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var rows [][]float64
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}

		row, err := parseRecord(record)
		if err != nil {
			if line == 1 && isHeader(record) {
				continue
			}
			return nil, fmt.Errorf("record %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.New("no numeric records")
	}
	return rows, nil
}

// ReadMatrix reads a CSV stream into an N×D matrix, one row per record.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out, nil
}

// LoadMatrixFile reads a CSV file with ReadMatrix.
func LoadMatrixFile(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	return ReadMatrix(file)
}

func parseRecord(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		row[i] = v
	}
	return row, nil
}

// isHeader reports whether none of the fields of record is a number.
func isHeader(record []string) bool {
	for _, field := range record {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			return false
		}
	}
	return true
}
