package ndarray

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReshapeInfersDimension(t *testing.T) {
	a, err := New([]float64{1, 2, 3, 4, 5, 6}, 6)
	require.NoError(t, err)

	out, err := a.Reshape(1, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6}, out.Shape())

	out, err = a.Reshape(-1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())

	_, err = a.Reshape(-1, 4)
	assert.ErrorIs(t, err, ErrShape)

	_, err = a.Reshape(-1, -1)
	assert.ErrorIs(t, err, ErrShape)
}

func TestReshapeScalar(t *testing.T) {
	out, err := Scalar(2.5).Reshape(1, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, out.Shape())
	assert.Equal(t, []float64{2.5}, out.Data())
}

func TestSliceLastAxis(t *testing.T) {
	a, err := FromRows([][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
	})
	require.NoError(t, err)

	out, err := a.Slice(1, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, out.Shape())
	assert.Equal(t, []float64{2, 3, 6, 7}, out.Data())

	out, err = a.Slice(-1, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 8}, out.Data())

	_, err = a.Slice(1, 2, 5)
	assert.ErrorIs(t, err, ErrAxis)
}

func TestSliceMiddleAxis(t *testing.T) {
	a, err := New([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 2, 3, 2)
	require.NoError(t, err)

	out, err := a.Slice(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, out.Shape())
	assert.Equal(t, []float64{2, 3, 8, 9}, out.Data())
}

func TestSqueeze(t *testing.T) {
	a, err := New([]float64{1, 2, 3}, 3, 1)
	require.NoError(t, err)

	out, err := a.Squeeze(1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, out.Shape())

	_, err = a.Squeeze(0)
	assert.ErrorIs(t, err, ErrShape)
}

func TestAt(t *testing.T) {
	a, err := New([]float64{0, 1, 2, 3, 4, 5}, 2, 3)
	require.NoError(t, err)

	v, err := a.At(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = a.At(2, 0)
	assert.ErrorIs(t, err, ErrAxis)
}

func TestMatrixRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	a := FromMatrix(m)
	assert.Equal(t, []int{2, 2}, a.Shape())

	back, err := a.Matrix()
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, back))

	_, err = Vector([]float64{1, 2}).Matrix()
	assert.ErrorIs(t, err, ErrShape)
}

func TestJSONNestedLists(t *testing.T) {
	var a Array
	require.NoError(t, json.Unmarshal([]byte(`[[1, 2, 3], [4, 5, 6]]`), &a))
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, a.Data())

	encoded, err := json.Marshal(&a)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1, 2, 3], [4, 5, 6]]`, string(encoded))

	var s Array
	require.NoError(t, json.Unmarshal([]byte(`0.25`), &s))
	assert.Equal(t, 0, s.NDim())
	assert.Equal(t, []float64{0.25}, s.Data())

	var ragged Array
	assert.Error(t, json.Unmarshal([]byte(`[[1, 2], [3]]`), &ragged))
}

func TestSameShape(t *testing.T) {
	assert.True(t, SameShape(Zeros(2, 3), Zeros(2, 3)))
	assert.False(t, SameShape(Zeros(3), Zeros(3, 1)))
	assert.False(t, SameShape(Zeros(3), nil))
}
