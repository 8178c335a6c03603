package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"
)

// foldCase is set on platforms whose default filesystems ignore case.
var foldCase = runtime.GOOS == "darwin" || runtime.GOOS == "windows"

// Canonical returns an absolute, clean form of path with symlinks resolved
// in the longest prefix that exists. Missing trailing elements are kept as
// written, so a config file that is not created yet still compares equal to
// its eventual location.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			abs = filepath.Join(resolved, rest)
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	if foldCase {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// SamePath reports whether a and b name the same location. When either
// cannot be made absolute the raw strings are compared.
func SamePath(a, b string) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca == cb
}
