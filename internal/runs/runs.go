// Package runs keeps a history of fit and sampling sessions in a JSON file
// shared by concurrent CLI invocations.
package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusStale     Status = "stale"
)

// CleanupMode controls how stale runs are handled.
type CleanupMode string

const (
	CleanupMark   CleanupMode = "mark"
	CleanupRemove CleanupMode = "remove"
)

// Run is one fit or sampling session.
type Run struct {
	ID         string    `json:"id"`
	Backend    string    `json:"backend"`
	Operation  string    `json:"operation"`
	Status     Status    `json:"status"`
	PID        int       `json:"pid,omitempty"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type historyFile struct {
	Runs map[string]Run `json:"runs"`
}

// Start records a new running session and returns it with its id assigned.
func Start(run Run) (Run, error) {
	if run.Backend == "" {
		return Run{}, errors.New("run backend is required")
	}
	if run.Operation == "" {
		return Run{}, errors.New("run operation is required")
	}

	run.ID = uuid.NewString()
	run.Status = StatusRunning
	run.PID = os.Getpid()
	run.StartedAt = time.Now().UTC()

	err := withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}
		history.Runs[run.ID] = run
		return writeHistoryFile(history)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Finish marks a run succeeded, or failed when runErr is not nil.
func Finish(id, output string, runErr error) error {
	if id == "" {
		return errors.New("run id is required")
	}

	return withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}

		run, ok := history.Runs[id]
		if !ok {
			return fmt.Errorf("run %q not found", id)
		}

		run.Status = StatusSucceeded
		run.Output = output
		if runErr != nil {
			run.Status = StatusFailed
			run.Error = runErr.Error()
		}
		run.FinishedAt = time.Now().UTC()

		history.Runs[id] = run
		return writeHistoryFile(history)
	})
}

// Get returns a run by id.
func Get(id string) (Run, bool, error) {
	if id == "" {
		return Run{}, false, errors.New("run id is required")
	}

	var run Run
	var found bool
	err := withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}
		run, found = history.Runs[id]
		return nil
	})
	return run, found, err
}

// List returns every run, oldest first.
func List() ([]Run, error) {
	var out []Run
	err := withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}
		out = make([]Run, 0, len(history.Runs))
		for _, run := range history.Runs {
			out = append(out, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Delete removes a run by id.
func Delete(id string) error {
	if id == "" {
		return errors.New("run id is required")
	}

	return withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}
		if _, ok := history.Runs[id]; !ok {
			return fmt.Errorf("run %q not found", id)
		}
		delete(history.Runs, id)
		return writeHistoryFile(history)
	})
}

// CleanupStale marks or removes running sessions whose process has exited.
func CleanupStale(mode CleanupMode) ([]string, error) {
	if mode == "" {
		mode = CleanupMark
	}
	if mode != CleanupMark && mode != CleanupRemove {
		return nil, fmt.Errorf("invalid cleanup mode %q", mode)
	}

	cleaned := []string{}
	err := withLock(func() error {
		history, err := readHistoryUnlocked()
		if err != nil {
			return err
		}

		for id, run := range history.Runs {
			if run.Status != StatusRunning || run.PID <= 0 || processAlive(run.PID) {
				continue
			}

			cleaned = append(cleaned, id)
			if mode == CleanupRemove {
				delete(history.Runs, id)
				continue
			}
			run.Status = StatusStale
			history.Runs[id] = run
		}

		if len(cleaned) == 0 {
			return nil
		}
		return writeHistoryFile(history)
	})

	sort.Strings(cleaned)
	return cleaned, err
}

// readHistoryUnlocked returns an empty history for a missing or corrupt file.
func readHistoryUnlocked() (historyFile, error) {
	path := historyFilePath()
	if path == "" {
		return historyFile{}, errors.New("run history path unavailable")
	}

	empty := historyFile{Runs: map[string]Run{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return historyFile{}, fmt.Errorf("read run history: %w", err)
	}

	var history historyFile
	if err := json.Unmarshal(data, &history); err != nil {
		return empty, nil
	}
	if history.Runs == nil {
		history.Runs = map[string]Run{}
	}
	return history, nil
}

func writeHistoryFile(history historyFile) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal run history: %w", err)
	}
	return writeFileAtomic(historyFilePath(), data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run history dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace run history: %w", err)
	}

	return nil
}

func stateDir() string {
	if value := os.Getenv("PROPHET_STATE_DIR"); value != "" {
		return value
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}

	return filepath.Join(home, ".config", "prophet")
}

func historyFilePath() string {
	if value := os.Getenv("PROPHET_RUNS_FILE"); value != "" {
		return value
	}

	dir := stateDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "runs.json")
}

func lockFilePath() string {
	return historyFilePath() + ".lock"
}
