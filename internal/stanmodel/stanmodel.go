// Package stanmodel locates the precompiled Stan programs shipped with the
// forecasting package.
package stanmodel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// CmdStanVersion is the CmdStan release bundled next to the models.
const CmdStanVersion = "2.31.0"

// ModelFileName is the current single-artifact model executable.
const ModelFileName = "prophet_model.bin"

var (
	ErrModelNotFound = errors.New("stan model not found")
	ErrLegacyModel   = errors.New("unknown legacy stan model")
)

var (
	legacyGrowths     = []string{"linear", "logistic"}
	legacySeasonality = []string{"additive", "multiplicative"}
)

// Path returns the current model executable under dir.
func Path(dir string) string {
	return filepath.Join(dir, ModelFileName)
}

// LegacyName returns the artifact name of a per-growth, per-seasonality model.
func LegacyName(growth, seasonality string) (string, error) {
	if !contains(legacyGrowths, growth) || !contains(legacySeasonality, seasonality) {
		return "", fmt.Errorf("%w: %s/%s", ErrLegacyModel, growth, seasonality)
	}
	return fmt.Sprintf("%s_%s_growth", growth, seasonality), nil
}

// LegacyPath returns the legacy model executable under dir.
func LegacyPath(dir, growth, seasonality string) (string, error) {
	name, err := LegacyName(growth, seasonality)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".bin"), nil
}

// LegacyModels lists every legacy artifact name.
func LegacyModels() []string {
	names := make([]string, 0, len(legacyGrowths)*len(legacySeasonality))
	for _, growth := range legacyGrowths {
		for _, seasonality := range legacySeasonality {
			names = append(names, fmt.Sprintf("%s_%s_growth", growth, seasonality))
		}
	}
	return names
}

// Resolve checks that the model executable at path exists.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve model path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, abs)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModelNotFound, abs)
	}
	return abs, nil
}

// LocalCmdStan returns the bundled CmdStan directory under dir, or "" when absent.
func LocalCmdStan(dir string) string {
	if dir == "" {
		return ""
	}
	candidate := filepath.Join(dir, "cmdstan-"+CmdStanVersion)
	info, err := os.Stat(candidate)
	if err != nil || !info.IsDir() {
		return ""
	}
	return candidate
}

// RuntimeEnv returns env with the CmdStan TBB library directory prepended to
// PATH on Windows, where model executables need it to start.
func RuntimeEnv(env []string, cmdstanDir string) []string {
	if cmdstanDir == "" || runtime.GOOS != "windows" {
		return env
	}
	tbb := filepath.Join(cmdstanDir, "stan", "lib", "stan_math", "lib", "tbb")
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		if len(kv) > 5 && (kv[:5] == "PATH=" || kv[:5] == "Path=") {
			kv = kv[:5] + tbb + string(os.PathListSeparator) + kv[5:]
			found = true
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+tbb)
	}
	return out
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
