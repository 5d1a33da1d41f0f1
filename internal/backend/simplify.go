package backend

import "fmt"

// componentParams always keep a draw x component layout.
var componentParams = map[string]bool{
	"delta": true,
	"beta":  true,
}

// SimplifyDraws collapses the degenerate second axis left by multi-chain
// sampling. delta and beta are kept two-dimensional.
func SimplifyDraws(params *Params) (*Params, error) {
	out := NewParams()
	for _, name := range params.Names() {
		value, _ := params.Get(name)
		if dim, err := value.Dim(1); err == nil && dim == 1 {
			squeezed, err := value.Squeeze(1)
			if err != nil {
				return nil, fmt.Errorf("squeeze %s: %w", name, err)
			}
			value = squeezed
		}
		if componentParams[name] && value.NDim() < 2 {
			reshaped, err := value.Reshape(-1, 1)
			if err != nil {
				return nil, fmt.Errorf("reshape %s: %w", name, err)
			}
			value = reshaped
		}
		if err := out.Add(name, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
