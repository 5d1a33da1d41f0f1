// Package numpyro runs the forecasting model through NumPyro, using SVI for
// point estimates and NUTS for posterior sampling.
package numpyro

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
	"github.com/2lambda123/facebook-prophet/internal/tracing"
)

const (
	defaultNumSteps     = 10000
	defaultLearningRate = 0.001
	defaultChains       = 4
	defaultMaxTreeDepth = 10
	defaultChainMethod  = "sequential"

	guideSuffix = "_auto_loc"
)

type Backend struct {
	backend.Options

	cfg     backend.Config
	log     *logrus.Logger
	engine  Engine
	model   string
	stanFit any
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register(backend.KindNumPyro, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	}); err != nil {
		panic(err)
	}
}

// New builds a backend on the worker named by cfg.Worker.
func New(cfg backend.Config) (*Backend, error) {
	return NewWithEngine(cfg, NewWorkerEngine(cfg.Worker, cfg.Log()))
}

// NewWithEngine builds a backend on engine, which must be available.
func NewWithEngine(cfg backend.Config, engine Engine) (*Backend, error) {
	if err := engine.Available(); err != nil {
		return nil, fmt.Errorf("%w: numpyro not found, please reinstall prophet with `pip install prophet[numpyro]`: %v",
			backend.ErrMissingDependency, err)
	}
	b := &Backend{
		Options: backend.DefaultOptions(),
		cfg:     cfg,
		log:     cfg.Log(),
		engine:  engine,
	}
	if _, err := b.LoadModel(); err != nil {
		return nil, err
	}
	b.DisableNewtonFallback()
	return b, nil
}

func (b *Backend) Type() string {
	return string(backend.KindNumPyro)
}

// LoadModel is a no-op: model functions are chosen per call from the trend
// indicator.
func (b *Backend) LoadModel() (backend.ModelHandle, error) {
	return nil, nil
}

// StanFit returns the raw result of the most recent run.
func (b *Backend) StanFit() any {
	return b.stanFit
}

// Model returns the model function used by the most recent run.
func (b *Backend) Model() string {
	return b.model
}

func (b *Backend) Fit(ctx context.Context, init backend.InitValues, data *backend.ModelData, opts backend.FitOptions) (params *backend.Params, err error) {
	if data == nil {
		return nil, errors.New("model data is required")
	}
	init = backend.ResolveInit(init, opts.Init)
	engineInit, engineData, err := PrepareData(init, data)
	if err != nil {
		return nil, err
	}
	model, err := ModelName(data.TrendIndicator)
	if err != nil {
		return nil, err
	}

	req := &SVIRequest{
		Model:        model,
		Data:         engineData,
		Init:         engineInit,
		NumSteps:     defaultNumSteps,
		LearningRate: defaultLearningRate,
		ProgressBar:  opts.ProgressBar,
		StableUpdate: true,
	}
	if opts.NumSteps > 0 {
		req.NumSteps = opts.NumSteps
	}
	if opts.LearningRate > 0 {
		req.LearningRate = opts.LearningRate
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}

	ctx, span := tracing.Start(ctx, "numpyro.svi",
		attribute.String("model", model),
		attribute.Int("num_steps", req.NumSteps),
	)
	started := time.Now()
	defer func() {
		metrics.RecordRun(b.Type(), "svi", started, err)
		tracing.End(span, err)
	}()

	b.log.WithFields(logrus.Fields{
		"backend":   b.Type(),
		"model":     model,
		"num_steps": req.NumSteps,
	}).Info("starting svi")
	result, err := b.engine.RunSVI(ctx, req)
	if err != nil {
		return nil, err
	}
	b.stanFit = result
	b.model = model

	params = backend.NewParams()
	for _, entry := range result.Params {
		name := strings.ReplaceAll(entry.Name, guideSuffix, "")
		reshaped, err := entry.Value.Reshape(1, -1)
		if err != nil {
			return nil, fmt.Errorf("reshape %s: %w", name, err)
		}
		if err := params.Add(name, reshaped); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func (b *Backend) Sampling(ctx context.Context, init backend.InitValues, data *backend.ModelData, numDraws int, opts backend.SamplingOptions) (params *backend.Params, err error) {
	if data == nil {
		return nil, errors.New("model data is required")
	}
	if numDraws < 2 {
		return nil, fmt.Errorf("number of draws must be at least 2, got %d", numDraws)
	}
	init = backend.ResolveInit(init, opts.Init)
	engineInit, engineData, err := PrepareData(init, data)
	if err != nil {
		return nil, err
	}
	model, err := ModelName(data.TrendIndicator)
	if err != nil {
		return nil, err
	}

	req := &MCMCRequest{
		Model:        model,
		Data:         engineData,
		NumWarmup:    numDraws / 2,
		NumSamples:   numDraws / 2,
		NumChains:    defaultChains,
		Thinning:     1,
		ChainMethod:  defaultChainMethod,
		MaxTreeDepth: defaultMaxTreeDepth,
		ProgressBar:  opts.ProgressBar,
	}
	if opts.Chains > 0 {
		req.NumChains = opts.Chains
	}
	if opts.ChainMethod != "" {
		req.ChainMethod = opts.ChainMethod
	}
	if opts.MaxTreeDepth > 0 {
		req.MaxTreeDepth = opts.MaxTreeDepth
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	req.Init, err = replicateInit(engineInit, req.NumChains)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "numpyro.mcmc",
		attribute.String("model", model),
		attribute.Int("num_chains", req.NumChains),
		attribute.Int("num_samples", req.NumSamples),
	)
	started := time.Now()
	defer func() {
		metrics.RecordRun(b.Type(), "mcmc", started, err)
		tracing.End(span, err)
	}()

	b.log.WithFields(logrus.Fields{
		"backend": b.Type(),
		"model":   model,
		"chains":  req.NumChains,
		"draws":   req.NumSamples,
	}).Info("starting mcmc")
	result, err := b.engine.RunMCMC(ctx, req)
	if err != nil {
		return nil, err
	}
	b.stanFit = result
	b.model = model

	pooled := backend.NewParams()
	for _, entry := range result.Samples {
		flat, err := poolChains(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", entry.Name, err)
		}
		if err := pooled.Add(entry.Name, flat); err != nil {
			return nil, err
		}
	}
	return backend.SimplifyDraws(pooled)
}

// replicateInit stacks one copy of every init value per chain: scalars become
// chains x 1, vectors chains x n.
func replicateInit(init Values, chains int) (Values, error) {
	out := Values{}
	for name, value := range init {
		var row []float64
		switch typed := value.(type) {
		case float64:
			row = []float64{typed}
		case *ndarray.Array:
			row = typed.Data()
		default:
			return nil, fmt.Errorf("init %s has unsupported type %T", name, value)
		}
		data := make([]float64, 0, chains*len(row))
		for c := 0; c < chains; c++ {
			data = append(data, row...)
		}
		stacked, err := ndarray.New(data, chains, len(row))
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", name, err)
		}
		out[name] = stacked
	}
	return out, nil
}

// poolChains merges the leading chains and draws axes, chain-major.
func poolChains(value *ndarray.Array) (*ndarray.Array, error) {
	shape := value.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("samples need chain and draw axes, got shape %v", shape)
	}
	pooled := append([]int{shape[0] * shape[1]}, shape[2:]...)
	return value.Reshape(pooled...)
}
