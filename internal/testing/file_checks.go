package testing

import (
	"fmt"
	"os"
	"strings"
)

// FileChecker runs a list of checks against one path and reports every failure.
type FileChecker struct {
	Path   string
	Checks []func(string) error
}

// NewFileChecker ...
func NewFileChecker(path string) *FileChecker {
	return &FileChecker{Path: path}
}

// Check returns nil or a MultiError with one entry per failed check.
func (fc *FileChecker) Check() error {
	var errs MultiError
	for _, check := range fc.Checks {
		AppendErr(&errs, check(fc.Path))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsDir ...
func (fc *FileChecker) IsDir() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	})
	return fc
}

// ModeEquals checks the permission bits of the path.
func (fc *FileChecker) ModeEquals(perm os.FileMode) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if got := info.Mode().Perm(); got != perm.Perm() {
			return fmt.Errorf("%s: want mode %o, got %o", path, perm.Perm(), got)
		}
		return nil
	})
	return fc
}

// Entries checks the number of directory entries whose name matches suffix.
func (fc *FileChecker) Entries(suffix string, want int) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		count := 0
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), suffix) {
				count++
			}
		}
		if count != want {
			return fmt.Errorf("%s: want %d *%s entries, got %d", path, want, suffix, count)
		}
		return nil
	})
	return fc
}
