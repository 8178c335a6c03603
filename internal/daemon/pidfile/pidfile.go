// Package pidfile keeps the daemon's process id on disk so that a second
// 'causes serve' refuses to start and 'serve stop' knows whom to signal.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// RunningError reports a live daemon holding the pidfile.
type RunningError struct {
	PID int
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("daemon already running with PID %d", e.PID)
}

// Acquire claims path for the current process. A file left by a dead
// process, or by this one, is replaced.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	self := os.Getpid()
	content := []byte(strconv.Itoa(self))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.Write(content)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return fmt.Errorf("failed to write pid file: %w", werr)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create pid file: %w", err)
		}

		pid, rerr := Read(path)
		switch {
		case rerr == nil && pid == self:
			return nil
		case rerr == nil && alive(pid):
			return &RunningError{PID: pid}
		}
		// Stale or unreadable: take it over.
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale pid file: %w", err)
		}
	}
	return fmt.Errorf("failed to acquire pid file %s", path)
}

// Release removes the pidfile.
func Release(path string) error {
	return os.Remove(path)
}

// Read parses the pid stored at path.
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// IsRunning reports whether the process named by path is alive. A missing
// file means not running.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return alive(pid), pid, nil
}

// Terminate sends SIGTERM to the process named by path. It returns 0 and
// no error when nothing is running.
func Terminate(path string) (int, error) {
	running, pid, err := IsRunning(path)
	if err != nil || !running {
		return 0, err
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("failed to send stop signal to %d: %w", pid, err)
	}
	return pid, nil
}

// alive probes pid with signal 0. EPERM still means the process exists.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
