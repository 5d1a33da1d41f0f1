package cmdstan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/2lambda123/facebook-prophet/internal/ndarray"
	"github.com/2lambda123/facebook-prophet/internal/stanmodel"
)

// OptimizeArgs describes one CmdStan optimize run.
type OptimizeArgs struct {
	Data      *Data
	Init      *Init
	Algorithm string
	Iter      int
	Seed      *int64
	Extra     map[string]string
}

// SampleArgs describes one CmdStan sample run.
type SampleArgs struct {
	Data         *Data
	Init         *Init
	Chains       int
	IterSampling int
	IterWarmup   int
	Seed         *int64
	Extra        map[string]string
}

// OptimizeResult is a point estimate as written by CmdStan.
type OptimizeResult struct {
	ColumnNames []string
	Params      []float64
	RunDir      string
}

// SampleResult holds post-warmup draws shaped draws x chains x columns.
type SampleResult struct {
	ColumnNames []string
	Draws       *ndarray.Array
	RunDir      string
}

// Runner executes a compiled Stan program.
type Runner interface {
	Optimize(ctx context.Context, args OptimizeArgs) (*OptimizeResult, error)
	Sample(ctx context.Context, args SampleArgs) (*SampleResult, error)
}

// RunError reports a CmdStan process that exited abnormally.
type RunError struct {
	Method   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("cmdstan %s failed: %v: %s", e.Method, e.Err, e.Stderr)
	}
	return fmt.Sprintf("cmdstan %s failed: %v", e.Method, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Model is a compiled CmdStan executable.
type Model struct {
	exePath    string
	cmdstanDir string
	workDir    string
	keepFiles  bool
	log        *logrus.Logger
}

var _ Runner = (*Model)(nil)

func (m *Model) Name() string {
	return m.exePath
}

func (m *Model) Optimize(ctx context.Context, args OptimizeArgs) (*OptimizeResult, error) {
	runDir, err := m.prepareRun(args.Data, args.Init)
	if err != nil {
		return nil, err
	}
	defer m.cleanup(runDir)

	output := filepath.Join(runDir, "output.csv")
	cmdArgs := []string{"optimize", "algorithm=" + args.Algorithm}
	if args.Iter > 0 {
		cmdArgs = append(cmdArgs, "iter="+strconv.Itoa(args.Iter))
	}
	cmdArgs = append(cmdArgs, extraArgs(args.Extra)...)
	cmdArgs = append(cmdArgs, m.ioArgs(runDir, output, args.Seed)...)

	if err := m.exec(ctx, "optimize", runDir, cmdArgs); err != nil {
		return nil, err
	}

	columns, rows, err := ReadCSVFile(output)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read %s: no optimization output", output)
	}
	return &OptimizeResult{ColumnNames: columns, Params: rows[len(rows)-1], RunDir: runDir}, nil
}

func (m *Model) Sample(ctx context.Context, args SampleArgs) (*SampleResult, error) {
	runDir, err := m.prepareRun(args.Data, args.Init)
	if err != nil {
		return nil, err
	}
	defer m.cleanup(runDir)

	chains := args.Chains
	if chains <= 0 {
		chains = 1
	}
	output := filepath.Join(runDir, "output.csv")
	cmdArgs := []string{
		"sample",
		"num_samples=" + strconv.Itoa(args.IterSampling),
		"num_warmup=" + strconv.Itoa(args.IterWarmup),
		"num_chains=" + strconv.Itoa(chains),
	}
	cmdArgs = append(cmdArgs, extraArgs(args.Extra)...)
	cmdArgs = append(cmdArgs, m.ioArgs(runDir, output, args.Seed)...)

	if err := m.exec(ctx, "sample", runDir, cmdArgs); err != nil {
		return nil, err
	}

	files := []string{output}
	if chains > 1 {
		files = files[:0]
		for i := 1; i <= chains; i++ {
			files = append(files, filepath.Join(runDir, fmt.Sprintf("output_%d.csv", i)))
		}
	}
	columns, draws, err := readChains(files)
	if err != nil {
		return nil, err
	}
	return &SampleResult{ColumnNames: columns, Draws: draws, RunDir: runDir}, nil
}

func (m *Model) prepareRun(data *Data, init *Init) (string, error) {
	base := m.workDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	runDir := filepath.Join(base, "prophet-"+uuid.NewString())
	if err := os.Mkdir(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	if err := writeJSON(filepath.Join(runDir, "data.json"), data); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "init.json"), init); err != nil {
		return "", err
	}
	return runDir, nil
}

func (m *Model) ioArgs(runDir, output string, seed *int64) []string {
	args := []string{
		"data", "file=" + filepath.Join(runDir, "data.json"),
		"init=" + filepath.Join(runDir, "init.json"),
		"output", "file=" + output,
	}
	if seed != nil {
		args = append(args, "random", "seed="+strconv.FormatInt(*seed, 10))
	}
	return args
}

func (m *Model) exec(ctx context.Context, method, runDir string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.CommandContext(ctx, m.exePath, args...)
	cmd.Dir = runDir
	cmd.Env = stanmodel.RuntimeEnv(os.Environ(), m.cmdstanDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	m.log.WithFields(logrus.Fields{
		"method": method,
		"args":   strings.Join(args, " "),
	}).Debug("running cmdstan")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &RunError{
				Method:   method,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}
		return fmt.Errorf("start cmdstan: %w", err)
	}
	m.log.WithField("method", method).Debug(strings.TrimSpace(stdout.String()))
	return nil
}

func (m *Model) cleanup(runDir string) {
	if m.keepFiles {
		return
	}
	_ = os.RemoveAll(runDir)
}

func extraArgs(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, key := range keys {
		args = append(args, key+"="+extra[key])
	}
	return args
}

func writeJSON(path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
