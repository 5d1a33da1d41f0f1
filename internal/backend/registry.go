package backend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrBackendRegistered = errors.New("backend already registered")
	ErrBackendMissing    = errors.New("backend not registered")
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindCmdStan Kind = "CMDSTAN"
	KindNumPyro Kind = "NUMPYRO"
)

// Kinds returns every known backend identifier.
func Kinds() []Kind {
	return []Kind{KindCmdStan, KindNumPyro}
}

// DefaultKind returns the default backend identifier.
func DefaultKind() Kind {
	return KindCmdStan
}

// Factory builds a fresh backend for one fit or sampling session.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{}
)

// Register binds a factory to a known kind.
func Register(kind Kind, factory Factory) error {
	if !known(kind) {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, kind)
	}
	if factory == nil {
		return errors.New("backend factory is nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[kind]; exists {
		return fmt.Errorf("%w: %s", ErrBackendRegistered, kind)
	}
	registry[kind] = factory
	return nil
}

// Lookup returns the factory for name. Names are matched exactly.
func Lookup(name string) (Factory, error) {
	kind := Kind(name)
	if !known(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendMissing, name)
	}
	return factory, nil
}

// New looks up name and constructs a backend with cfg.
func New(name string, cfg Config) (Backend, error) {
	factory, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return factory(cfg)
}

// Validate fails unless every known kind has a registered factory.
func Validate() error {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var missing []string
	for _, kind := range Kinds() {
		if _, ok := registry[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrBackendMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Names returns all known backend identifiers.
func Names() []string {
	kinds := Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return names
}

func known(kind Kind) bool {
	for _, k := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
