package stanmodel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLegacyName(t *testing.T) {
	name, err := LegacyName("logistic", "multiplicative")
	if err != nil {
		t.Fatalf("legacy name: %v", err)
	}
	if name != "logistic_multiplicative_growth" {
		t.Fatalf("unexpected legacy name %q", name)
	}

	if _, err := LegacyName("flat", "additive"); err == nil {
		t.Fatalf("expected error for flat legacy model")
	}
}

func TestLegacyModels(t *testing.T) {
	models := LegacyModels()
	if len(models) != 4 {
		t.Fatalf("expected 4 legacy models, got %d", len(models))
	}
	if models[0] != "linear_additive_growth" {
		t.Fatalf("unexpected first model %q", models[0])
	}
}

func TestResolve(t *testing.T) {
	tempDir := t.TempDir()
	path := Path(tempDir)

	if _, err := Resolve(path); err == nil {
		t.Fatalf("expected missing model error")
	}

	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write model: %v", err)
	}
	resolved, err := Resolve(path)
	if err != nil {
		t.Fatalf("resolve model: %v", err)
	}
	if filepath.Base(resolved) != ModelFileName {
		t.Fatalf("unexpected resolved path %q", resolved)
	}

	if _, err := Resolve(tempDir); err == nil {
		t.Fatalf("expected directory error")
	}
}

func TestLocalCmdStan(t *testing.T) {
	tempDir := t.TempDir()
	if got := LocalCmdStan(tempDir); got != "" {
		t.Fatalf("expected no bundled cmdstan, got %q", got)
	}

	bundled := filepath.Join(tempDir, "cmdstan-"+CmdStanVersion)
	if err := os.MkdirAll(bundled, 0o755); err != nil {
		t.Fatalf("mkdir cmdstan: %v", err)
	}
	if got := LocalCmdStan(tempDir); got != bundled {
		t.Fatalf("expected %q, got %q", bundled, got)
	}
}
