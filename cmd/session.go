package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/config"
	"github.com/2lambda123/facebook-prophet/internal/notify"
	"github.com/2lambda123/facebook-prophet/internal/runs"
)

// sessionInput is the document read by fit and sample.
type sessionInput struct {
	Data       *backend.ModelData `json:"data"`
	Init       backend.InitValues `json:"init"`
	CustomInit backend.CustomInit `json:"custom_init,omitempty"`
}

func readSessionInput(path string) (*sessionInput, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var input sessionInput
	if err := json.NewDecoder(reader).Decode(&input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if input.Data == nil {
		return nil, errors.New("input is missing \"data\"")
	}
	return &input, nil
}

// newSessionBackend builds a fresh backend for one session. An empty name
// selects the configured default.
func newSessionBackend(name string) (backend.Backend, error) {
	settings, err := config.Current()
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = settings.Defaults.Backend
	}

	b, err := backend.New(name, settings.BackendConfig(logger))
	if err != nil {
		return nil, err
	}
	if err := b.SetOptions(settings.BackendOptions()); err != nil {
		return nil, err
	}
	return b, nil
}

// sessionRequest names what runSession records and where it reports.
type sessionRequest struct {
	op      string
	input   string
	output  string
	webhook string
}

// runSession records req in the run history and writes the parameters to
// req.output, or stdout when it is empty.
func runSession(cmd *cobra.Command, b backend.Backend, req sessionRequest, fn func(ctx context.Context) (*backend.Params, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	op, output := req.op, req.output
	started := time.Now()

	record, err := runs.Start(runs.Run{Backend: b.Type(), Operation: op, Input: req.input})
	if err != nil {
		logger.WithError(err).Warn("run history unavailable")
	}
	entry := logger.WithFields(logrus.Fields{"backend": b.Type(), "operation": op, "run_id": record.ID})

	params, runErr := fn(ctx)
	if runErr == nil {
		runErr = writeParams(cmd.OutOrStdout(), params, output)
	}

	if record.ID != "" {
		if err := runs.Finish(record.ID, output, runErr); err != nil {
			entry.WithError(err).Warn("update run history")
		}
	}
	notifySession(entry, req.webhook, notify.Session{
		RunID:     record.ID,
		Backend:   b.Type(),
		Operation: op,
		Err:       runErr,
		Duration:  time.Since(started),
	})
	if runErr != nil {
		entry.WithError(runErr).Error("session failed")
		return runErr
	}
	entry.Info("session complete")
	return nil
}

// notifySession posts to webhook, or the configured notify.webhook when empty.
func notifySession(entry *logrus.Entry, webhook string, session notify.Session) {
	if strings.TrimSpace(webhook) == "" {
		if value, ok := config.GetConfig("notify.webhook"); ok {
			webhook = value
		}
	}
	if strings.TrimSpace(webhook) == "" {
		return
	}
	if err := notify.NotifySession(context.Background(), webhook, session, 10*time.Second); err != nil {
		entry.WithError(err).Warn("send webhook notification")
	}
}

func writeParams(stdout io.Writer, params *backend.Params, output string) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
