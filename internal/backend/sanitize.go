package backend

import (
	"github.com/spf13/cast"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// SanitizeInits merges custom into defaults. Scalars are used when they coerce
// to float64; vectors only when their shape matches the default's. Anything
// else silently keeps the default.
func SanitizeInits(defaults InitValues, custom CustomInit) InitValues {
	sanitized := defaults
	sanitized.K = scalarOr(custom["k"], defaults.K)
	sanitized.M = scalarOr(custom["m"], defaults.M)
	sanitized.SigmaObs = scalarOr(custom["sigma_obs"], defaults.SigmaObs)
	sanitized.Delta = vectorOr(custom["delta"], defaults.Delta)
	sanitized.Beta = vectorOr(custom["beta"], defaults.Beta)
	return sanitized
}

// ResolveInit returns defaults, or the sanitized merge when custom is set.
func ResolveInit(defaults InitValues, custom CustomInit) InitValues {
	if custom == nil {
		return defaults
	}
	return SanitizeInits(defaults, custom)
}

func scalarOr(value any, fallback float64) float64 {
	if value == nil {
		return fallback
	}
	parsed, err := cast.ToFloat64E(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func vectorOr(value any, fallback []float64) []float64 {
	if value == nil {
		return fallback
	}
	var arr *ndarray.Array
	switch typed := value.(type) {
	case *ndarray.Array:
		arr = typed
	default:
		parsed, err := ndarray.FromNested(value)
		if err != nil {
			return fallback
		}
		arr = parsed
	}
	if arr == nil || !ndarray.SameShape(arr, ndarray.Vector(fallback)) {
		return fallback
	}
	return append([]float64(nil), arr.Data()...)
}
