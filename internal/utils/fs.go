package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// DirStatus is what CheckDirStatus found out about a candidate config dir.
type DirStatus struct {
	Exists   bool
	Writable bool
	Err      error
}

// FileExists reports whether path can be stat'ed.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates dirPath and its parents.
func EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("utils: creating %s: %w", dirPath, err)
	}
	return nil
}

// SaveTOMLFile encodes data into a sibling temp file and renames it over
// filePath, so a failed encode never leaves a truncated config behind.
func SaveTOMLFile(data any, filePath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".slynkserve-*.toml")
	if err != nil {
		return fmt.Errorf("utils: creating %s: %w", filePath, err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(data); err != nil {
		tmp.Close()
		return fmt.Errorf("utils: encoding %s: %w", filePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("utils: writing %s: %w", filePath, err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("utils: replacing %s: %w", filePath, err)
	}
	return nil
}

// AbsPath resolves a relative path against the working directory.
// Empty paths and paths that cannot be resolved are returned as given.
func AbsPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func canWrite(dirPath string) bool {
	f, err := os.CreateTemp(dirPath, ".slynkserve-write-*")
	if err != nil {
		log.Debugf("config dir %s is not writable: %v", dirPath, err)
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}

// ExecutableDir is the last config dir candidate, used when neither home
// config location can be written.
func ExecutableDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("utils: locating executable: %w", err)
	}
	return filepath.Dir(execPath), nil
}

// CheckDirStatus creates dirPath if needed and reports whether the config
// file could be written there.
func CheckDirStatus(dirPath string) DirStatus {
	if _, err := os.Stat(dirPath); err != nil {
		if err := EnsureDir(dirPath); err != nil {
			log.Debugf("skipping config dir candidate: %v", err)
			return DirStatus{Err: err}
		}
	}
	return DirStatus{Exists: true, Writable: canWrite(dirPath)}
}
