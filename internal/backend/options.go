package backend

import (
	"fmt"
	"sort"
)

// Options holds the runtime options every backend shares. Embed it to get
// SetOptions.
type Options struct {
	newtonFallback bool
}

// DefaultOptions returns options with the Newton fallback enabled.
func DefaultOptions() Options {
	return Options{newtonFallback: true}
}

// NewtonFallback reports whether a failed primary optimizer is retried with Newton.
func (o *Options) NewtonFallback() bool {
	return o.newtonFallback
}

// DisableNewtonFallback turns the fallback off.
func (o *Options) DisableNewtonFallback() {
	o.newtonFallback = false
}

// SetOptions applies named options. Only newton_fallback is recognized.
func (o *Options) SetOptions(options map[string]any) error {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	next := *o
	for _, key := range keys {
		switch key {
		case "newton_fallback":
			enabled, ok := options[key].(bool)
			if !ok {
				return fmt.Errorf("%w: newton_fallback must be a bool, got %T", ErrInvalidOption, options[key])
			}
			next.newtonFallback = enabled
		default:
			return fmt.Errorf("%w: %s", ErrUnknownOption, key)
		}
	}
	*o = next
	return nil
}
