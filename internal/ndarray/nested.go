package ndarray

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Nested returns the array as nested []any lists, or a bare float64 for scalars.
func (a *Array) Nested() any {
	if len(a.shape) == 0 {
		return a.data[0]
	}
	value, _ := nest(a.shape, a.data)
	return value
}

func nest(shape []int, data []float64) (any, int) {
	if len(shape) == 1 {
		out := make([]any, shape[0])
		for i := range out {
			out[i] = data[i]
		}
		return out, shape[0]
	}
	out := make([]any, shape[0])
	offset := 0
	for i := range out {
		value, used := nest(shape[1:], data[offset:])
		out[i] = value
		offset += used
	}
	return out, offset
}

// FromNested builds an array from a scalar or rectangular nested list, as
// produced by encoding/json or by Nested.
func FromNested(value any) (*Array, error) {
	shape, err := inferShape(value)
	if err != nil {
		return nil, err
	}
	data := make([]float64, 0)
	data, err = flatten(value, shape, data)
	if err != nil {
		return nil, err
	}
	return &Array{shape: shape, data: data}, nil
}

func inferShape(value any) ([]int, error) {
	shape := []int{}
	for {
		list, ok := asList(value)
		if !ok {
			return shape, nil
		}
		shape = append(shape, len(list))
		if len(list) == 0 {
			return shape, nil
		}
		value = list[0]
	}
}

func flatten(value any, shape []int, out []float64) ([]float64, error) {
	if len(shape) == 0 {
		if _, ok := asList(value); ok {
			return nil, fmt.Errorf("%w: ragged nested list", ErrShape)
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric element %v", ErrShape, value)
		}
		return append(out, f), nil
	}
	list, ok := asList(value)
	if !ok || len(list) != shape[0] {
		return nil, fmt.Errorf("%w: ragged nested list", ErrShape)
	}
	var err error
	for _, item := range list {
		out, err = flatten(item, shape[1:], out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []float64:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out, true
	case []int:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out, true
	case [][]float64:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func (a *Array) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Nested())
}

func (a *Array) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromNested(raw)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}
