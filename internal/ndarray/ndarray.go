// Package ndarray provides the dense row-major float64 array used to move
// parameter values between backends and callers.
package ndarray

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShape = errors.New("invalid shape")
	ErrAxis  = errors.New("axis out of range")
)

// Array is a dense row-major array of float64 values. A zero-length shape
// denotes a scalar holding exactly one value.
type Array struct {
	shape []int
	data  []float64
}

// New wraps data in an array of the given shape. The data slice is not copied.
func New(data []float64, shape ...int) (*Array, error) {
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, dim)
		}
		size *= dim
	}
	if size != len(data) {
		return nil, fmt.Errorf("%w: %v needs %d values, got %d", ErrShape, shape, size, len(data))
	}
	return &Array{shape: append([]int(nil), shape...), data: data}, nil
}

// Scalar returns a zero-dimensional array.
func Scalar(value float64) *Array {
	return &Array{shape: []int{}, data: []float64{value}}
}

// Vector returns a one-dimensional array holding a copy of values.
func Vector(values []float64) *Array {
	return &Array{shape: []int{len(values)}, data: append([]float64(nil), values...)}
}

// Zeros returns a zero-filled array of the given shape.
func Zeros(shape ...int) *Array {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Array{shape: append([]int(nil), shape...), data: make([]float64, size)}
}

// FromRows builds a two-dimensional array from equal-length rows.
func FromRows(rows [][]float64) (*Array, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShape, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Array{shape: []int{len(rows), cols}, data: data}, nil
}

// FromMatrix copies a gonum matrix into a two-dimensional array.
func FromMatrix(m mat.Matrix) *Array {
	r, c := m.Dims()
	out := Zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[i*c+j] = m.At(i, j)
		}
	}
	return out
}

func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

func (a *Array) NDim() int { return len(a.shape) }

func (a *Array) Size() int { return len(a.data) }

// Data returns the backing slice in row-major order.
func (a *Array) Data() []float64 { return a.data }

// Dim returns the size of axis, counting negative axes from the end.
func (a *Array) Dim(axis int) (int, error) {
	axis, err := a.normalizeAxis(axis)
	if err != nil {
		return 0, err
	}
	return a.shape[axis], nil
}

// At returns the element at the given index.
func (a *Array) At(index ...int) (float64, error) {
	if len(index) != len(a.shape) {
		return 0, fmt.Errorf("%w: %d indices for %d axes", ErrAxis, len(index), len(a.shape))
	}
	offset := 0
	for axis, i := range index {
		if i < 0 || i >= a.shape[axis] {
			return 0, fmt.Errorf("%w: index %d out of range for axis %d with size %d", ErrAxis, i, axis, a.shape[axis])
		}
		offset = offset*a.shape[axis] + i
	}
	return a.data[offset], nil
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{shape: a.Shape(), data: append([]float64(nil), a.data...)}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// Reshape returns a copy with a new shape. At most one dimension may be -1,
// in which case it is inferred from the remaining dimensions.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	known := 1
	infer := -1
	for i, dim := range shape {
		switch {
		case dim == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("%w: more than one inferred dimension in %v", ErrShape, shape)
			}
			infer = i
		case dim < 0:
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShape, dim)
		default:
			known *= dim
		}
	}

	resolved := append([]int(nil), shape...)
	if infer >= 0 {
		if known == 0 || len(a.data)%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape size %d into %v", ErrShape, len(a.data), shape)
		}
		resolved[infer] = len(a.data) / known
	} else if known != len(a.data) {
		return nil, fmt.Errorf("%w: cannot reshape size %d into %v", ErrShape, len(a.data), shape)
	}

	return &Array{shape: resolved, data: append([]float64(nil), a.data...)}, nil
}

// Squeeze drops axis, which must have size 1.
func (a *Array) Squeeze(axis int) (*Array, error) {
	axis, err := a.normalizeAxis(axis)
	if err != nil {
		return nil, err
	}
	if a.shape[axis] != 1 {
		return nil, fmt.Errorf("%w: cannot squeeze axis %d with size %d", ErrShape, axis, a.shape[axis])
	}
	shape := make([]int, 0, len(a.shape)-1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, a.shape[axis+1:]...)
	return &Array{shape: shape, data: append([]float64(nil), a.data...)}, nil
}

// Slice copies the half-open range [start, end) along axis.
func (a *Array) Slice(axis, start, end int) (*Array, error) {
	axis, err := a.normalizeAxis(axis)
	if err != nil {
		return nil, err
	}
	dim := a.shape[axis]
	if start < 0 || end < start || end > dim {
		return nil, fmt.Errorf("%w: slice [%d:%d] out of range for axis %d with size %d", ErrAxis, start, end, axis, dim)
	}

	outer := 1
	for _, d := range a.shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range a.shape[axis+1:] {
		inner *= d
	}

	width := (end - start) * inner
	data := make([]float64, 0, outer*width)
	for o := 0; o < outer; o++ {
		base := o*dim*inner + start*inner
		data = append(data, a.data[base:base+width]...)
	}

	shape := a.Shape()
	shape[axis] = end - start
	return &Array{shape: shape, data: data}, nil
}

// Matrix copies a two-dimensional array into a gonum dense matrix.
func (a *Array) Matrix() (*mat.Dense, error) {
	if len(a.shape) != 2 {
		return nil, fmt.Errorf("%w: matrix needs 2 axes, got %d", ErrShape, len(a.shape))
	}
	if a.shape[0] == 0 || a.shape[1] == 0 {
		return nil, fmt.Errorf("%w: gonum matrices cannot be empty, got %v", ErrShape, a.shape)
	}
	return mat.NewDense(a.shape[0], a.shape[1], append([]float64(nil), a.data...)), nil
}

func (a *Array) String() string {
	return fmt.Sprintf("Array%v%v", a.shape, a.Nested())
}

func (a *Array) normalizeAxis(axis int) (int, error) {
	n := len(a.shape)
	if axis < 0 {
		axis += n
	}
	if axis < 0 || axis >= n {
		return 0, fmt.Errorf("%w: axis %d for %d-dimensional array", ErrAxis, axis, n)
	}
	return axis, nil
}
