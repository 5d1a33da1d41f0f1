package numpyro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
)

// DefaultWorker is the executable that hosts the NumPyro model functions.
const DefaultWorker = "prophet-numpyro-worker"

// SVIRequest runs stochastic variational inference with a point-mass guide.
type SVIRequest struct {
	Model        string  `json:"model"`
	Data         Values  `json:"data"`
	Init         Values  `json:"init"`
	NumSteps     int     `json:"num_steps"`
	LearningRate float64 `json:"learning_rate"`
	Seed         int64   `json:"seed"`
	ProgressBar  bool    `json:"progress_bar"`
	StableUpdate bool    `json:"stable_update"`
}

// MCMCRequest runs NUTS.
type MCMCRequest struct {
	Model        string `json:"model"`
	Data         Values `json:"data"`
	Init         Values `json:"init"`
	NumWarmup    int    `json:"num_warmup"`
	NumSamples   int    `json:"num_samples"`
	NumChains    int    `json:"num_chains"`
	Thinning     int    `json:"thinning"`
	ChainMethod  string `json:"chain_method"`
	MaxTreeDepth int    `json:"max_tree_depth"`
	Seed         int64  `json:"seed"`
	ProgressBar  bool   `json:"progress_bar"`
}

// SVIResult holds the optimized guide parameters, keyed by guide site name.
type SVIResult struct {
	Params Arrays    `json:"params"`
	Losses []float64 `json:"losses,omitempty"`
}

// MCMCResult holds samples grouped by chain: chains x draws x ...
type MCMCResult struct {
	Samples Arrays `json:"samples"`
}

// NamedArray is one entry of Arrays.
type NamedArray struct {
	Name  string
	Value *ndarray.Array
}

// Arrays is a JSON object of arrays that keeps its key order.
type Arrays []NamedArray

func (a *Arrays) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errors.New("arrays must be a JSON object")
	}
	var out Arrays
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		name, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", token)
		}
		var value ndarray.Array
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		out = append(out, NamedArray{Name: name, Value: &value})
	}
	*a = out
	return nil
}

func (a Arrays) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(entry.Name)
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Engine runs NumPyro inference.
type Engine interface {
	Available() error
	RunSVI(ctx context.Context, req *SVIRequest) (*SVIResult, error)
	RunMCMC(ctx context.Context, req *MCMCRequest) (*MCMCResult, error)
}

// WorkerEngine talks to a worker process: one JSON request on stdin, one
// JSON response on stdout.
type WorkerEngine struct {
	path string
	log  *logrus.Logger
}

var _ Engine = (*WorkerEngine)(nil)

func NewWorkerEngine(path string, log *logrus.Logger) *WorkerEngine {
	if strings.TrimSpace(path) == "" {
		path = DefaultWorker
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WorkerEngine{path: path, log: log}
}

type workerRequest struct {
	Method  string `json:"method"`
	Request any    `json:"request"`
}

type workerResponse struct {
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (w *WorkerEngine) Available() error {
	if strings.TrimSpace(w.path) == "" {
		return errors.New("numpyro worker path is empty")
	}
	if _, err := exec.LookPath(w.path); err != nil {
		return fmt.Errorf("numpyro worker not installed: %w", err)
	}
	return nil
}

func (w *WorkerEngine) RunSVI(ctx context.Context, req *SVIRequest) (*SVIResult, error) {
	var result SVIResult
	if err := w.call(ctx, "svi", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (w *WorkerEngine) RunMCMC(ctx context.Context, req *MCMCRequest) (*MCMCResult, error) {
	var result MCMCResult
	if err := w.call(ctx, "mcmc", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (w *WorkerEngine) call(ctx context.Context, method string, req any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(workerRequest{Method: method, Request: req})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	cmd := exec.CommandContext(ctx, w.path)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	w.log.WithFields(logrus.Fields{"worker": w.path, "method": method}).Debug("running numpyro worker")
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if stderr.Len() > 0 {
			return fmt.Errorf("numpyro worker failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("numpyro worker failed: %w", err)
	}

	var resp workerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("numpyro %s: %s", method, resp.Error)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
