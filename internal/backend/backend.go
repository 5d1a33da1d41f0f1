package backend

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownOption     = errors.New("unknown option")
	ErrInvalidOption     = errors.New("invalid option value")
	ErrMissingDependency = errors.New("missing dependency")
)

// ModelHandle is an opaque reference to a loaded probabilistic program.
type ModelHandle interface {
	Name() string
}

// FitOptions tunes a single point-estimate run. Zero values select the
// backend's defaults; fields a backend does not understand are ignored.
type FitOptions struct {
	// Init replaces the default init after sanitization.
	Init         CustomInit
	Algorithm    string
	Iter         int
	Seed         *int64
	NumSteps     int
	LearningRate float64
	ProgressBar  bool
	// Args is passed to the engine verbatim.
	Args map[string]string
}

// SamplingOptions tunes a single posterior sampling run.
type SamplingOptions struct {
	Init         CustomInit
	Chains       int
	Warmup       *int
	Seed         *int64
	MaxTreeDepth int
	ChainMethod  string
	ProgressBar  bool
	Args         map[string]string
}

// Backend defines the interface for inference backends.
type Backend interface {
	Type() string
	LoadModel() (ModelHandle, error)
	SetOptions(options map[string]any) error
	Fit(ctx context.Context, init InitValues, data *ModelData, opts FitOptions) (*Params, error)
	Sampling(ctx context.Context, init InitValues, data *ModelData, numDraws int, opts SamplingOptions) (*Params, error)
}

// Config carries the construction-time settings shared by all backends.
type Config struct {
	ModelDir   string
	ModelFile  string
	CmdStanDir string
	WorkDir    string
	KeepFiles  bool

	LegacyGrowth      string
	LegacySeasonality string

	Worker string

	Logger *logrus.Logger
}

// Log returns the configured logger, falling back to the logrus standard logger.
func (c Config) Log() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}
