// Package paths provides XDG-compliant path resolution for causes.
//
// Resolution order:
// 1. CAUSES_HOME (portable root) → $CAUSES_HOME/{config,data,state,run}
// 2. XDG env vars → $XDG_*_HOME/causes
// 3. Platform defaults → ~/.config/causes, ~/.local/share/causes, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "causes"

// resolve returns $CAUSES_HOME/<homeSub> when CAUSES_HOME is set, otherwise
// the XDG variable or the home-relative fallback with the app name appended.
func resolve(homeSub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("CAUSES_HOME"); root != "" {
		return filepath.Join(root, homeSub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		parts := append([]string{homeDir}, fallback...)
		return filepath.Join(append(parts, appName)...)
	}
	return ""
}

// ConfigDir returns the configuration directory holding the global causes.yml.
func ConfigDir() string {
	return resolve("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the data directory. The daemon database lives here.
func DataDir() string {
	return resolve("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the state directory used for logs and the PID file.
func StateDir() string {
	return resolve("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if root := os.Getenv("CAUSES_HOME"); root != "" {
		return filepath.Join(root, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "causesd.sock")
}

// DatabasePath returns the default daemon database path.
func DatabasePath() string {
	return filepath.Join(DataDir(), "causes.db")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "causesd.pid")
}

// EnsureDirs creates all causes directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
