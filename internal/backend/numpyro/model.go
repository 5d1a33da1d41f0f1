package numpyro

import (
	"fmt"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/mat"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// FieldKind is the declared type of a model function argument.
type FieldKind int

const (
	ScalarField FieldKind = iota
	ArrayField
)

// Field is one declared model function argument.
type Field struct {
	Name string
	Kind FieldKind
}

// DataFields are the data arguments the model functions accept.
var DataFields = []Field{
	{"T", ScalarField},
	{"S", ScalarField},
	{"K", ScalarField},
	{"tau", ScalarField},
	{"trend_indicator", ScalarField},
	{"y", ArrayField},
	{"t", ArrayField},
	{"cap", ArrayField},
	{"t_change", ArrayField},
	{"s_a", ArrayField},
	{"s_m", ArrayField},
	{"X", ArrayField},
	{"sigmas", ArrayField},
	{"A", ArrayField},
}

// ParamFields are the latent parameters of the model functions.
var ParamFields = []Field{
	{"k", ScalarField},
	{"m", ScalarField},
	{"delta", ArrayField},
	{"beta", ArrayField},
	{"sigma_obs", ScalarField},
}

// ModelName returns the model function for a trend indicator.
func ModelName(trendIndicator int) (string, error) {
	switch trendIndicator {
	case backend.TrendLinear:
		return "linear", nil
	case backend.TrendLogistic:
		return "logistic", nil
	case backend.TrendFlat:
		return "flat", nil
	default:
		return "", fmt.Errorf("unknown trend indicator %d", trendIndicator)
	}
}

// ChangepointMatrix returns the T x S indicator matrix with A[i][j] = 1 when
// t[i] >= tChange[j].
func ChangepointMatrix(t, tChange []float64) *ndarray.Array {
	if len(t) == 0 || len(tChange) == 0 {
		return ndarray.Zeros(len(t), len(tChange))
	}
	a := mat.NewDense(len(t), len(tChange), nil)
	a.Apply(func(i, j int, _ float64) float64 {
		if t[i] >= tChange[j] {
			return 1
		}
		return 0
	}, a)
	return ndarray.FromMatrix(a)
}

// Values maps argument names to *ndarray.Array or float64.
type Values map[string]any

// PrepareData keeps the declared fields, adds the changepoint matrix and
// coerces every value to its declared kind.
func PrepareData(init backend.InitValues, data *backend.ModelData) (Values, Values, error) {
	rawData := data.Fields()
	rawData["A"] = ChangepointMatrix(data.Time, data.TChange)

	outData, err := coerce(DataFields, rawData)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare data: %w", err)
	}
	outInit, err := coerce(ParamFields, init.Fields())
	if err != nil {
		return nil, nil, fmt.Errorf("prepare init: %w", err)
	}
	return outInit, outData, nil
}

func coerce(fields []Field, raw map[string]any) (Values, error) {
	out := Values{}
	for _, field := range fields {
		value, ok := raw[field.Name]
		if !ok {
			continue
		}
		switch field.Kind {
		case ArrayField:
			arr, err := toArray(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field.Name, err)
			}
			out[field.Name] = arr
		default:
			f, err := cast.ToFloat64E(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field.Name, err)
			}
			out[field.Name] = f
		}
	}
	return out, nil
}

func toArray(value any) (*ndarray.Array, error) {
	switch typed := value.(type) {
	case *ndarray.Array:
		return typed, nil
	case *mat.Dense:
		return ndarray.FromMatrix(typed), nil
	case [][]float64:
		return ndarray.FromRows(typed)
	case nil:
		return ndarray.Zeros(0), nil
	default:
		return ndarray.FromNested(value)
	}
}
