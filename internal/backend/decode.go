package backend

import (
	"fmt"
	"strings"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// BaseName strips the index suffix from an engine column name. Both
// "delta.1" and "delta[1]" yield "delta"; the dot form wins when both appear.
func BaseName(column string) string {
	if i := strings.Index(column, "."); i >= 0 {
		return column[:i]
	}
	if i := strings.Index(column, "["); i >= 0 {
		return column[:i]
	}
	return column
}

// DecodeColumns splits data into one array per parameter. Columns sharing a
// base name must be contiguous; each run becomes a slice along the last axis
// of data (the only axis for one-dimensional data).
func DecodeColumns(columns []string, data *ndarray.Array) (*Params, error) {
	out := NewParams()
	if data == nil || data.NDim() == 0 {
		return nil, fmt.Errorf("%w: data must have at least one axis", ErrColumnMismatch)
	}
	width, _ := data.Dim(-1)
	if width != len(columns) {
		return nil, fmt.Errorf("%w: %d column names for %d columns", ErrColumnMismatch, len(columns), width)
	}
	if len(columns) == 0 {
		return out, nil
	}

	prev := BaseName(columns[0])
	start := 0
	for end, column := range columns {
		curr := BaseName(column)
		if curr == prev {
			continue
		}
		if err := addRun(out, prev, data, start, end); err != nil {
			return nil, err
		}
		prev = curr
		start = end
	}
	if err := addRun(out, prev, data, start, len(columns)); err != nil {
		return nil, err
	}
	return out, nil
}

func addRun(out *Params, name string, data *ndarray.Array, start, end int) error {
	if _, exists := out.Get(name); exists {
		return fmt.Errorf("%w: %s", ErrRepeatedColumn, name)
	}
	slice, err := data.Slice(-1, start, end)
	if err != nil {
		return fmt.Errorf("slice %s: %w", name, err)
	}
	return out.Add(name, slice)
}
