package cmdstan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// ReadCSV parses Stan CSV output: '#' comment lines, one header row, then one
// numeric row per draw.
func ReadCSV(r io.Reader) ([]string, [][]float64, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("stan csv has no header")
		}
		return nil, nil, fmt.Errorf("read stan csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	var rows [][]float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read stan csv row %d: %w", len(rows)+1, err)
		}
		row := make([]float64, len(record))
		for i, field := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parse %s in row %d: %w", columns[i], len(rows)+1, err)
			}
			row[i] = value
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// ReadCSVFile parses the Stan CSV file at path.
func ReadCSVFile(path string) ([]string, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open stan csv: %w", err)
	}
	defer file.Close()

	columns, rows, err := ReadCSV(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return columns, rows, nil
}

// readChains stacks per-chain CSV files into a draws x chains x columns array.
func readChains(paths []string) ([]string, *ndarray.Array, error) {
	var columns []string
	perChain := make([][][]float64, 0, len(paths))
	for _, path := range paths {
		names, rows, err := ReadCSVFile(path)
		if err != nil {
			return nil, nil, err
		}
		if columns == nil {
			columns = names
		} else if !equalColumns(columns, names) {
			return nil, nil, fmt.Errorf("%s: columns differ from first chain", path)
		}
		if len(perChain) > 0 && len(rows) != len(perChain[0]) {
			return nil, nil, fmt.Errorf("%s: %d draws, expected %d", path, len(rows), len(perChain[0]))
		}
		perChain = append(perChain, rows)
	}
	return columns, StackChains(perChain, len(columns)), nil
}

// StackChains lays out chain-major draws as draws x chains x columns.
func StackChains(perChain [][][]float64, width int) *ndarray.Array {
	chains := len(perChain)
	draws := 0
	if chains > 0 {
		draws = len(perChain[0])
	}
	out := ndarray.Zeros(draws, chains, width)
	data := out.Data()
	for c, rows := range perChain {
		for d, row := range rows {
			copy(data[(d*chains+c)*width:], row)
		}
	}
	return out
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
