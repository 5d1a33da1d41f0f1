package cmdstan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

type fakeRunner struct {
	failAlgorithms map[string]error
	algorithms     []string
	sampleArgs     []SampleArgs
	optimizeCols   []string
	optimizeVals   []float64
	sampleResult   *SampleResult
}

func (f *fakeRunner) Optimize(_ context.Context, args OptimizeArgs) (*OptimizeResult, error) {
	f.algorithms = append(f.algorithms, args.Algorithm)
	if err, ok := f.failAlgorithms[args.Algorithm]; ok {
		return nil, err
	}
	vals := append([]float64(nil), f.optimizeVals...)
	if args.Algorithm == AlgorithmNewton {
		vals[0] = -1
	}
	return &OptimizeResult{ColumnNames: f.optimizeCols, Params: vals}, nil
}

func (f *fakeRunner) Sample(_ context.Context, args SampleArgs) (*SampleResult, error) {
	f.sampleArgs = append(f.sampleArgs, args)
	return f.sampleResult, nil
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		failAlgorithms: map[string]error{},
		optimizeCols:   []string{"lp__", "k", "m", "delta.1", "delta.2", "sigma_obs"},
		optimizeVals:   []float64{5, 0.3, 0.4, 0.01, 0.02, 0.5},
	}
}

func testData(t int) *backend.ModelData {
	data := &backend.ModelData{T: t, S: 2, K: 1, Tau: 0.05, Sigmas: []float64{10}}
	for i := 0; i < t; i++ {
		data.Y = append(data.Y, float64(i))
		data.Time = append(data.Time, float64(i)/float64(t))
		data.Cap = append(data.Cap, 0)
	}
	data.TChange = []float64{0.25, 0.5}
	data.SA = []float64{1}
	data.SM = []float64{0}
	return data
}

func testInit() backend.InitValues {
	return backend.InitValues{K: 0.1, M: 0.2, Delta: []float64{0, 0}, Beta: []float64{0}, SigmaObs: 1}
}

func newTestBackend(runner Runner) (*Backend, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewWithRunner(backend.Config{Logger: logger}, runner), hook
}

func runFailure() error {
	return &RunError{Method: "optimize", ExitCode: 70, Stderr: "line search failed", Err: errors.New("exit status 70")}
}

func TestFitSmallSeriesUsesNewton(t *testing.T) {
	runner := newFakeRunner()
	b, _ := newTestBackend(runner)

	params, err := b.Fit(context.Background(), testInit(), testData(10), backend.FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{AlgorithmNewton}, runner.algorithms)

	assert.Equal(t, []string{"lp__", "k", "m", "delta", "sigma_obs"}, params.Names())
	delta, _ := params.Get("delta")
	assert.Equal(t, []int{1, 2}, delta.Shape())
	k, _ := params.Get("k")
	assert.Equal(t, []int{1, 1}, k.Shape())
	assert.Equal(t, []float64{0.3}, k.Data())
}

func TestFitLargeSeriesUsesLBFGS(t *testing.T) {
	runner := newFakeRunner()
	b, _ := newTestBackend(runner)

	_, err := b.Fit(context.Background(), testInit(), testData(150), backend.FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{AlgorithmLBFGS}, runner.algorithms)
}

func TestFitFallsBackToNewtonOnce(t *testing.T) {
	runner := newFakeRunner()
	runner.failAlgorithms[AlgorithmLBFGS] = runFailure()
	b, hook := newTestBackend(runner)

	params, err := b.Fit(context.Background(), testInit(), testData(150), backend.FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{AlgorithmLBFGS, AlgorithmNewton}, runner.algorithms)

	lp, _ := params.Get("lp__")
	assert.Equal(t, []float64{-1}, lp.Data())

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
			assert.Contains(t, entry.Message, "Falling back to Newton")
		}
	}
	assert.Equal(t, 1, warnings)

	result, ok := b.StanFit().(*OptimizeResult)
	require.True(t, ok)
	assert.Equal(t, -1.0, result.Params[0])
}

func TestFitExplicitAlgorithmFallsBack(t *testing.T) {
	runner := newFakeRunner()
	runner.failAlgorithms[AlgorithmBFGS] = runFailure()
	b, _ := newTestBackend(runner)

	_, err := b.Fit(context.Background(), testInit(), testData(10), backend.FitOptions{Algorithm: "BFGS"})
	require.NoError(t, err)
	assert.Equal(t, []string{AlgorithmBFGS, AlgorithmNewton}, runner.algorithms)
}

func TestFitFallbackDisabledPropagates(t *testing.T) {
	runner := newFakeRunner()
	failure := runFailure()
	runner.failAlgorithms[AlgorithmLBFGS] = failure
	b, hook := newTestBackend(runner)
	require.NoError(t, b.SetOptions(map[string]any{"newton_fallback": false}))

	_, err := b.Fit(context.Background(), testInit(), testData(150), backend.FitOptions{})
	assert.Same(t, failure, err)
	assert.Equal(t, []string{AlgorithmLBFGS}, runner.algorithms)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level)
	}
}

func TestFitNewtonFailureIsNotRetried(t *testing.T) {
	runner := newFakeRunner()
	failure := runFailure()
	runner.failAlgorithms[AlgorithmNewton] = failure
	b, _ := newTestBackend(runner)

	_, err := b.Fit(context.Background(), testInit(), testData(10), backend.FitOptions{})
	assert.Same(t, failure, err)
	assert.Equal(t, []string{AlgorithmNewton}, runner.algorithms)
}

func TestFitNonEngineErrorIsNotRetried(t *testing.T) {
	runner := newFakeRunner()
	runner.failAlgorithms[AlgorithmLBFGS] = context.Canceled
	b, _ := newTestBackend(runner)

	_, err := b.Fit(context.Background(), testInit(), testData(150), backend.FitOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{AlgorithmLBFGS}, runner.algorithms)
}

func TestFitSanitizesCustomInit(t *testing.T) {
	runner := &recordingRunner{fakeRunner: newFakeRunner()}
	b, _ := newTestBackend(runner)

	_, err := b.Fit(context.Background(), testInit(), testData(10), backend.FitOptions{
		Init: backend.CustomInit{"k": "bad", "m": 0.9, "delta": []float64{1, 2, 3}, "beta": []float64{7}},
	})
	require.NoError(t, err)
	require.NotNil(t, runner.init)
	assert.Equal(t, 0.1, runner.init.K)
	assert.Equal(t, 0.9, runner.init.M)
	assert.Equal(t, []float64{0, 0}, runner.init.Delta)
	assert.Equal(t, []float64{7}, runner.init.Beta)
}

type recordingRunner struct {
	*fakeRunner
	init *Init
}

func (r *recordingRunner) Optimize(ctx context.Context, args OptimizeArgs) (*OptimizeResult, error) {
	r.init = args.Init
	return r.fakeRunner.Optimize(ctx, args)
}

func TestSamplingFlattensChains(t *testing.T) {
	columns := []string{"lp__", "k", "delta.1", "beta.1", "beta.2"}
	// 2 draws x 2 chains
	perChain := [][][]float64{
		{{1, 10, 100, 1000, 2000}, {2, 20, 200, 1001, 2001}},
		{{3, 30, 300, 1002, 2002}, {4, 40, 400, 1003, 2003}},
	}
	runner := newFakeRunner()
	runner.sampleResult = &SampleResult{ColumnNames: columns, Draws: StackChains(perChain, len(columns))}
	b, _ := newTestBackend(runner)

	params, err := b.Sampling(context.Background(), testInit(), testData(10), 100, backend.SamplingOptions{})
	require.NoError(t, err)

	require.Len(t, runner.sampleArgs, 1)
	args := runner.sampleArgs[0]
	assert.Equal(t, 4, args.Chains)
	assert.Equal(t, 50, args.IterSampling)
	assert.Equal(t, 50, args.IterWarmup)

	k, _ := params.Get("k")
	assert.Equal(t, []int{4}, k.Shape())
	assert.Equal(t, []float64{10, 30, 20, 40}, k.Data())

	delta, _ := params.Get("delta")
	assert.Equal(t, []int{4, 1}, delta.Shape())

	beta, _ := params.Get("beta")
	assert.Equal(t, []int{4, 2}, beta.Shape())
}

func TestSamplingOverrides(t *testing.T) {
	runner := newFakeRunner()
	runner.sampleResult = &SampleResult{ColumnNames: []string{"k"}, Draws: ndarray.Zeros(3, 2, 1)}
	b, _ := newTestBackend(runner)

	warmup := 7
	_, err := b.Sampling(context.Background(), testInit(), testData(10), 20, backend.SamplingOptions{Chains: 2, Warmup: &warmup})
	require.NoError(t, err)
	args := runner.sampleArgs[0]
	assert.Equal(t, 2, args.Chains)
	assert.Equal(t, 10, args.IterSampling)
	assert.Equal(t, 7, args.IterWarmup)

	_, err = b.Sampling(context.Background(), testInit(), testData(10), 1, backend.SamplingOptions{})
	assert.Error(t, err)
}

func TestSetOptionsRejectsUnknown(t *testing.T) {
	b, _ := newTestBackend(newFakeRunner())
	err := b.SetOptions(map[string]any{"tol": 1e-3})
	assert.ErrorIs(t, err, backend.ErrUnknownOption)
	assert.True(t, b.NewtonFallback())
}

func TestTypeAndRunErrorMessage(t *testing.T) {
	b, _ := newTestBackend(newFakeRunner())
	assert.Equal(t, "CMDSTAN", b.Type())

	err := fmt.Errorf("fit: %w", runFailure())
	assert.Contains(t, err.Error(), "cmdstan optimize failed")
	assert.Contains(t, err.Error(), "line search failed")
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 70, runErr.ExitCode)
}
