package utils

import (
	"os"
	"path/filepath"
)

// ExeDir returns the directory containing the running executable, with
// symlinks resolved. Scheduled runs often start with a surprising working
// directory, so default config/state/log paths anchor here; callers fall
// back to os.Getwd() when resolution fails.
func ExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
