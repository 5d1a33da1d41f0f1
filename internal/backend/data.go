package backend

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// Trend indicators understood by the model.
const (
	TrendLinear   = 0
	TrendLogistic = 1
	TrendFlat     = 2
)

// ModelData is the backend-neutral model input. Backends treat it as read-only.
type ModelData struct {
	T              int        `json:"T"`
	S              int        `json:"S"`
	K              int        `json:"K"`
	Tau            float64    `json:"tau"`
	TrendIndicator int        `json:"trend_indicator"`
	Y              []float64  `json:"y"`
	Time           []float64  `json:"t"`
	Cap            []float64  `json:"cap"`
	TChange        []float64  `json:"t_change"`
	SA             []float64  `json:"s_a"`
	SM             []float64  `json:"s_m"`
	X              *mat.Dense `json:"-"`
	Sigmas         []float64  `json:"sigmas"`
}

type modelDataJSON struct {
	modelDataAlias
	X [][]float64 `json:"X"`
}

// modelDataAlias strips the JSON methods from ModelData.
type modelDataAlias ModelData

func (d ModelData) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelDataJSON{modelDataAlias: modelDataAlias(d), X: d.XRows()})
}

func (d *ModelData) UnmarshalJSON(data []byte) error {
	var raw modelDataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = ModelData(raw.modelDataAlias)
	d.X = nil
	if len(raw.X) == 0 || len(raw.X[0]) == 0 {
		return nil
	}
	x, err := ndarray.FromRows(raw.X)
	if err != nil {
		return fmt.Errorf("decode X: %w", err)
	}
	d.X, err = x.Matrix()
	if err != nil {
		return fmt.Errorf("decode X: %w", err)
	}
	return nil
}

// XRows materializes the regressor matrix as T rows of K values. A nil matrix
// yields T empty rows.
func (d *ModelData) XRows() [][]float64 {
	if d.X == nil {
		rows := make([][]float64, d.T)
		for i := range rows {
			rows[i] = []float64{}
		}
		return rows
	}
	dense := mat.DenseCopyOf(d.X)
	r, _ := dense.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = mat.Row(nil, i, dense)
	}
	return rows
}

// Fields returns the inputs keyed by their model names.
func (d *ModelData) Fields() map[string]any {
	x := any(d.XRows())
	if d.X != nil {
		x = d.X
	}
	return map[string]any{
		"T":               d.T,
		"S":               d.S,
		"K":               d.K,
		"tau":             d.Tau,
		"trend_indicator": d.TrendIndicator,
		"y":               d.Y,
		"t":               d.Time,
		"cap":             d.Cap,
		"t_change":        d.TChange,
		"s_a":             d.SA,
		"s_m":             d.SM,
		"X":               x,
		"sigmas":          d.Sigmas,
	}
}

// InitValues is the backend-neutral initial parameter guess.
type InitValues struct {
	K        float64   `json:"k"`
	M        float64   `json:"m"`
	Delta    []float64 `json:"delta"`
	Beta     []float64 `json:"beta"`
	SigmaObs float64   `json:"sigma_obs"`
}

// Fields returns the inits keyed by their model names.
func (i InitValues) Fields() map[string]any {
	return map[string]any{
		"k":         i.K,
		"m":         i.M,
		"delta":     i.Delta,
		"beta":      i.Beta,
		"sigma_obs": i.SigmaObs,
	}
}

// CustomInit is a loosely typed caller-supplied init keyed by model name.
type CustomInit map[string]any
