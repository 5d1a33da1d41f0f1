package runs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cast"
)

var ErrLockTimeout = errors.New("run history lock timeout")

const lockPollInterval = 100 * time.Millisecond

// withLock runs fn while holding the history lock. An advisory flock on the
// lock file is preferred; filesystems without flock use a pid-stamped
// directory next to it.
func withLock(fn func() error) error {
	unlock, err := lockHistory()
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func lockHistory() (func(), error) {
	dir := stateDir()
	if dir == "" {
		return nil, errors.New("run history directory unavailable")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run history dir: %w", err)
	}

	deadline := time.Now().Add(lockTimeout())
	path := lockFilePath()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err == nil {
		unlock, flockErr := flockUntil(file, deadline)
		if flockErr == nil {
			return unlock, nil
		}
		file.Close()
		if !isFlockUnsupported(flockErr) {
			return nil, flockErr
		}
	}

	return mkdirLockUntil(path+".dir", deadline)
}

func flockUntil(file *os.File, deadline time.Time) (func(), error) {
	fd := int(file.Fd())
	err := pollUntil(deadline, func() (bool, error) {
		err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			return false, nil
		default:
			return false, err
		}
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = syscall.Flock(fd, syscall.LOCK_UN)
		_ = file.Close()
	}, nil
}

func mkdirLockUntil(lockDir string, deadline time.Time) (func(), error) {
	pidFile := filepath.Join(lockDir, "pid")
	err := pollUntil(deadline, func() (bool, error) {
		if err := os.Mkdir(lockDir, 0o755); err == nil {
			_ = os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644)
			return true, nil
		}
		// A holder that died without cleaning up leaves the directory behind.
		if owner := readPid(pidFile); owner == 0 || !processAlive(owner) {
			_ = os.RemoveAll(lockDir)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = os.RemoveAll(lockDir) }, nil
}

// pollUntil calls try until it reports success, fails, or deadline passes.
func pollUntil(deadline time.Time, try func() (bool, error)) error {
	for {
		done, err := try()
		if err != nil || done {
			return err
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockPollInterval)
	}
}

func processAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

func readPid(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return cast.ToInt(string(bytes.TrimSpace(data)))
}

// lockTimeout reads PROPHET_LOCK_TIMEOUT as a duration ("30s") or a bare
// number of seconds.
func lockTimeout() time.Duration {
	value := os.Getenv("PROPHET_LOCK_TIMEOUT")
	if value == "" {
		return 10 * time.Second
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	return 10 * time.Second
}

func isFlockUnsupported(err error) bool {
	return errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EOPNOTSUPP) || errors.Is(err, syscall.ENOTSUP)
}
