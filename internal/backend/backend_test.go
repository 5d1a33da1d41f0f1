package backend_test

import (
	"errors"
	"testing"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	_ "github.com/2lambda123/facebook-prophet/internal/backend/cmdstan"
	_ "github.com/2lambda123/facebook-prophet/internal/backend/numpyro"
)

func TestRegistryLoadsBackends(t *testing.T) {
	if err := backend.Validate(); err != nil {
		t.Fatalf("expected every backend registered: %v", err)
	}
	for _, name := range []string{"CMDSTAN", "NUMPYRO"} {
		factory, err := backend.Lookup(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if factory == nil {
			t.Fatalf("expected factory for %s", name)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	names := backend.Names()
	if len(names) != 2 || names[0] != "CMDSTAN" || names[1] != "NUMPYRO" {
		t.Fatalf("unexpected names %v", names)
	}
	if backend.DefaultKind() != backend.KindCmdStan {
		t.Fatalf("expected CMDSTAN default, got %s", backend.DefaultKind())
	}
}

func TestLookupUnknownBackend(t *testing.T) {
	for _, name := range []string{"PYMC", "cmdstan", ""} {
		_, err := backend.Lookup(name)
		if !errors.Is(err, backend.ErrUnknownBackend) {
			t.Fatalf("expected unknown backend error for %q, got %v", name, err)
		}
	}

	_, err := backend.New("PYMC", backend.Config{})
	if err == nil || err.Error() != "unknown backend: PYMC" {
		t.Fatalf("expected error naming PYMC, got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndUnknownKinds(t *testing.T) {
	factory := func(backend.Config) (backend.Backend, error) { return nil, nil }

	if err := backend.Register(backend.KindCmdStan, factory); !errors.Is(err, backend.ErrBackendRegistered) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if err := backend.Register("STAN2", factory); !errors.Is(err, backend.ErrUnknownBackend) {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	if err := backend.Register(backend.KindNumPyro, nil); err == nil {
		t.Fatal("expected nil factory error")
	}
}
