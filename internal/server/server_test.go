package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/ndarray"
	"github.com/2lambda123/facebook-prophet/internal/runs"
)

type fakeBackend struct {
	fitOpts   backend.FitOptions
	draws     int
	sampleErr error
}

func (f *fakeBackend) Type() string { return "CMDSTAN" }

func (f *fakeBackend) LoadModel() (backend.ModelHandle, error) { return nil, nil }

func (f *fakeBackend) SetOptions(map[string]any) error { return nil }

func (f *fakeBackend) Fit(_ context.Context, init backend.InitValues, _ *backend.ModelData, opts backend.FitOptions) (*backend.Params, error) {
	f.fitOpts = opts
	params := backend.NewParams()
	if err := params.Add("k", ndarray.Vector([]float64{init.K})); err != nil {
		return nil, err
	}
	return params, nil
}

func (f *fakeBackend) Sampling(_ context.Context, _ backend.InitValues, _ *backend.ModelData, numDraws int, _ backend.SamplingOptions) (*backend.Params, error) {
	f.draws = numDraws
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	return backend.NewParams(), nil
}

func newTestHandler(t *testing.T, fake *fakeBackend, token string) http.Handler {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("PROPHET_STATE_DIR", tempDir)
	t.Setenv("PROPHET_RUNS_FILE", filepath.Join(tempDir, "runs.json"))

	logger, _ := test.NewNullLogger()
	return NewHandler(Options{
		Token:  token,
		Logger: logger,
		NewBackend: func(name string) (backend.Backend, error) {
			if name != "" && name != "CMDSTAN" {
				return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, name)
			}
			return fake, nil
		},
	})
}

const fitBody = `{"data": {"T": 1, "S": 0, "K": 0, "tau": 0.05, "trend_indicator": 0,
  "y": [1], "t": [0], "cap": [0], "t_change": [], "s_a": [], "s_m": [], "sigmas": []},
  "init": {"k": 0.25, "m": 0, "delta": [], "beta": [], "sigma_obs": 1},
  "algorithm": "newton", "seed": 7}`

func TestFitEndpoint(t *testing.T) {
	fake := &fakeBackend{}
	handler := newTestHandler(t, fake, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fit", strings.NewReader(fitBody)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RunID   string               `json:"run_id"`
		Backend string               `json:"backend"`
		Params  map[string][]float64 `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CMDSTAN", resp.Backend)
	assert.Equal(t, []float64{0.25}, resp.Params["k"])
	assert.Equal(t, "newton", fake.fitOpts.Algorithm)
	require.NotNil(t, fake.fitOpts.Seed)
	assert.Equal(t, int64(7), *fake.fitOpts.Seed)

	run, found, err := runs.Get(resp.RunID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, runs.StatusSucceeded, run.Status)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+resp.RunID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSampleEndpointRecordsFailure(t *testing.T) {
	fake := &fakeBackend{sampleErr: errors.New("chains diverged")}
	handler := newTestHandler(t, fake, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sample", strings.NewReader(fitBody)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "chains diverged")
	assert.Equal(t, 1000, fake.draws)

	history, err := runs.List()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runs.StatusFailed, history[0].Status)
}

func TestSessionEndpointErrors(t *testing.T) {
	handler := newTestHandler(t, &fakeBackend{}, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fit?backend=PYMC", strings.NewReader(fitBody)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PYMC")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fit", strings.NewReader(`{"init": {}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenRequired(t *testing.T) {
	handler := newTestHandler(t, &fakeBackend{}, "secret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsAndIndex(t *testing.T) {
	handler := newTestHandler(t, &fakeBackend{}, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("NUMPYRO")))
}

func TestResolveCORSOrigin(t *testing.T) {
	assert.Equal(t, "", resolveCORSOrigin("", "127.0.0.1", false))
	assert.Equal(t, "*", resolveCORSOrigin("http://example.com", "127.0.0.1", true))
	assert.Equal(t, "http://localhost", resolveCORSOrigin("http://localhost", "127.0.0.1", false))
	assert.Equal(t, "", resolveCORSOrigin("http://example.com", "127.0.0.1", false))
}
