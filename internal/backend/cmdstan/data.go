package cmdstan

import (
	"github.com/2lambda123/facebook-prophet/internal/backend"
)

// Data is the model input in CmdStan JSON form.
type Data struct {
	T              int         `json:"T"`
	S              int         `json:"S"`
	K              int         `json:"K"`
	Tau            float64     `json:"tau"`
	TrendIndicator int         `json:"trend_indicator"`
	Y              []float64   `json:"y"`
	Time           []float64   `json:"t"`
	Cap            []float64   `json:"cap"`
	TChange        []float64   `json:"t_change"`
	SA             []float64   `json:"s_a"`
	SM             []float64   `json:"s_m"`
	X              [][]float64 `json:"X"`
	Sigmas         []float64   `json:"sigmas"`
}

// Init is the initial parameter guess in CmdStan JSON form.
type Init struct {
	K        float64   `json:"k"`
	M        float64   `json:"m"`
	Delta    []float64 `json:"delta"`
	Beta     []float64 `json:"beta"`
	SigmaObs float64   `json:"sigma_obs"`
}

// PrepareData copies the neutral init and data into CmdStan form. Nil
// vectors become empty lists so the JSON never carries nulls.
func PrepareData(init backend.InitValues, data *backend.ModelData) (*Init, *Data) {
	stanData := &Data{
		T:              data.T,
		S:              data.S,
		K:              data.K,
		Tau:            data.Tau,
		TrendIndicator: data.TrendIndicator,
		Y:              list(data.Y),
		Time:           list(data.Time),
		Cap:            list(data.Cap),
		TChange:        list(data.TChange),
		SA:             list(data.SA),
		SM:             list(data.SM),
		X:              data.XRows(),
		Sigmas:         list(data.Sigmas),
	}
	stanInit := &Init{
		K:        init.K,
		M:        init.M,
		Delta:    list(init.Delta),
		Beta:     list(init.Beta),
		SigmaObs: init.SigmaObs,
	}
	return stanInit, stanData
}

func list(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
