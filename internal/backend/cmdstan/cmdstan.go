// Package cmdstan runs the forecasting model through a compiled CmdStan
// executable.
package cmdstan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/metrics"
	"github.com/2lambda123/facebook-prophet/internal/ndarray"
	"github.com/2lambda123/facebook-prophet/internal/stanmodel"
	"github.com/2lambda123/facebook-prophet/internal/tracing"
)

const (
	AlgorithmNewton = "newton"
	AlgorithmLBFGS  = "lbfgs"
	AlgorithmBFGS   = "bfgs"

	// newtonThreshold is the observation count below which Newton is tried first.
	newtonThreshold = 100
	defaultIter     = 10000
	defaultChains   = 4
)

type Backend struct {
	backend.Options

	cfg        backend.Config
	log        *logrus.Logger
	cmdstanDir string
	runner     Runner
	stanFit    any
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register(backend.KindCmdStan, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	}); err != nil {
		panic(err)
	}
}

// New loads the compiled model described by cfg.
func New(cfg backend.Config) (*Backend, error) {
	b := newBackend(cfg)
	b.cmdstanDir = cfg.CmdStanDir
	if b.cmdstanDir == "" {
		b.cmdstanDir = stanmodel.LocalCmdStan(cfg.ModelDir)
	}
	handle, err := b.LoadModel()
	if err != nil {
		return nil, err
	}
	b.runner = handle.(*Model)
	return b, nil
}

// NewWithRunner builds a backend around an existing runner.
func NewWithRunner(cfg backend.Config, runner Runner) *Backend {
	b := newBackend(cfg)
	b.runner = runner
	return b
}

func newBackend(cfg backend.Config) *Backend {
	return &Backend{
		Options: backend.DefaultOptions(),
		cfg:     cfg,
		log:     cfg.Log(),
	}
}

func (b *Backend) Type() string {
	return string(backend.KindCmdStan)
}

// LoadModel resolves the model executable: an explicit model file, a legacy
// per-growth model, or the bundled prophet_model.bin.
func (b *Backend) LoadModel() (backend.ModelHandle, error) {
	path := b.cfg.ModelFile
	if path == "" && b.cfg.LegacyGrowth != "" {
		seasonality := b.cfg.LegacySeasonality
		if seasonality == "" {
			seasonality = "additive"
		}
		legacy, err := stanmodel.LegacyPath(b.cfg.ModelDir, b.cfg.LegacyGrowth, seasonality)
		if err != nil {
			return nil, err
		}
		path = legacy
	}
	if path == "" {
		path = stanmodel.Path(b.cfg.ModelDir)
	}

	exe, err := stanmodel.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("load cmdstan model: %w", err)
	}
	b.log.WithFields(logrus.Fields{"backend": b.Type(), "model": exe}).Debug("loaded stan model")
	return &Model{
		exePath:    exe,
		cmdstanDir: b.cmdstanDir,
		workDir:    b.cfg.WorkDir,
		keepFiles:  b.cfg.KeepFiles,
		log:        b.log,
	}, nil
}

// StanFit returns the raw result of the most recent run.
func (b *Backend) StanFit() any {
	return b.stanFit
}

func (b *Backend) Fit(ctx context.Context, init backend.InitValues, data *backend.ModelData, opts backend.FitOptions) (*backend.Params, error) {
	if data == nil {
		return nil, errors.New("model data is required")
	}
	init = backend.ResolveInit(init, opts.Init)
	stanInit, stanData := PrepareData(init, data)

	algorithm := strings.ToLower(strings.TrimSpace(opts.Algorithm))
	if algorithm == "" {
		algorithm = AlgorithmLBFGS
		if stanData.T < newtonThreshold {
			algorithm = AlgorithmNewton
		}
	}
	iter := opts.Iter
	if iter <= 0 {
		iter = defaultIter
	}
	args := OptimizeArgs{
		Data:      stanData,
		Init:      stanInit,
		Algorithm: algorithm,
		Iter:      iter,
		Seed:      opts.Seed,
		Extra:     opts.Args,
	}

	result, err := b.optimize(ctx, args)
	if err != nil {
		var runErr *RunError
		if !errors.As(err, &runErr) || !b.NewtonFallback() || args.Algorithm == AlgorithmNewton {
			return nil, err
		}
		b.log.WithFields(logrus.Fields{
			"backend":   b.Type(),
			"algorithm": args.Algorithm,
		}).WithError(err).Warn("Optimization terminated abnormally. Falling back to Newton.")
		metrics.RecordFallback(b.Type())

		args.Algorithm = AlgorithmNewton
		result, err = b.optimize(ctx, args)
		if err != nil {
			return nil, err
		}
	}
	b.stanFit = result

	decoded, err := backend.DecodeColumns(result.ColumnNames, ndarray.Vector(result.Params))
	if err != nil {
		return nil, err
	}
	params := backend.NewParams()
	for _, name := range decoded.Names() {
		value, _ := decoded.Get(name)
		reshaped, err := value.Reshape(1, -1)
		if err != nil {
			return nil, fmt.Errorf("reshape %s: %w", name, err)
		}
		if err := params.Add(name, reshaped); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func (b *Backend) Sampling(ctx context.Context, init backend.InitValues, data *backend.ModelData, numDraws int, opts backend.SamplingOptions) (*backend.Params, error) {
	if data == nil {
		return nil, errors.New("model data is required")
	}
	if numDraws < 2 {
		return nil, fmt.Errorf("number of draws must be at least 2, got %d", numDraws)
	}
	init = backend.ResolveInit(init, opts.Init)
	stanInit, stanData := PrepareData(init, data)

	chains := opts.Chains
	if chains <= 0 {
		chains = defaultChains
	}
	half := numDraws / 2
	warmup := half
	if opts.Warmup != nil {
		warmup = *opts.Warmup
	}

	result, err := b.sample(ctx, SampleArgs{
		Data:         stanData,
		Init:         stanInit,
		Chains:       chains,
		IterSampling: half,
		IterWarmup:   warmup,
		Seed:         opts.Seed,
		Extra:        opts.Args,
	})
	if err != nil {
		return nil, err
	}
	b.stanFit = result

	shape := result.Draws.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("cmdstan draws must have 3 axes, got %v", shape)
	}
	flat, err := result.Draws.Reshape(shape[0]*shape[1], shape[2])
	if err != nil {
		return nil, fmt.Errorf("flatten chains: %w", err)
	}
	params, err := backend.DecodeColumns(result.ColumnNames, flat)
	if err != nil {
		return nil, err
	}
	return backend.SimplifyDraws(params)
}

func (b *Backend) optimize(ctx context.Context, args OptimizeArgs) (result *OptimizeResult, err error) {
	ctx, span := tracing.Start(ctx, "cmdstan.optimize",
		attribute.String("algorithm", args.Algorithm),
		attribute.Int("iter", args.Iter),
	)
	started := time.Now()
	defer func() {
		metrics.RecordRun(b.Type(), "optimize", started, err)
		tracing.End(span, err)
	}()

	b.log.WithFields(logrus.Fields{
		"backend":   b.Type(),
		"algorithm": args.Algorithm,
		"T":         args.Data.T,
	}).Info("starting optimization")
	return b.runner.Optimize(ctx, args)
}

func (b *Backend) sample(ctx context.Context, args SampleArgs) (result *SampleResult, err error) {
	ctx, span := tracing.Start(ctx, "cmdstan.sample",
		attribute.Int("chains", args.Chains),
		attribute.Int("iter_sampling", args.IterSampling),
		attribute.Int("iter_warmup", args.IterWarmup),
	)
	started := time.Now()
	defer func() {
		metrics.RecordRun(b.Type(), "sample", started, err)
		tracing.End(span, err)
	}()

	b.log.WithFields(logrus.Fields{
		"backend": b.Type(),
		"chains":  args.Chains,
		"draws":   args.IterSampling,
		"warmup":  args.IterWarmup,
	}).Info("starting sampling")
	return b.runner.Sample(ctx, args)
}
