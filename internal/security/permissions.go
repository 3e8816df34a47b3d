// internal/security/permissions.go
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ValidateDirectoryPermissions reports a directory that other users can
// write to. Rule files launch arbitrary commands, so a world-writable rules
// directory lets any local user run code as the engine's user.
func ValidateDirectoryPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	mode := info.Mode().Perm()
	if mode&0002 != 0 {
		return fmt.Errorf("directory %s is world-writable (mode %04o)", path, mode)
	}
	return nil
}

// ValidateFilePermissions reports a world-writable file.
func ValidateFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	mode := info.Mode().Perm()
	if mode&0002 != 0 {
		return fmt.Errorf("file %s is world-writable (mode %04o)", path, mode)
	}
	return nil
}

// ValidateRulesDir checks the rules directory, its profile subdirectories
// and every rule file beneath it. All problems are returned joined.
func ValidateRulesDir(dir string) error {
	if err := ValidateDirectoryPermissions(dir); err != nil {
		return err
	}

	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case path == dir:
		case d.IsDir():
			if err := ValidateDirectoryPermissions(path); err != nil {
				errs = append(errs, err)
			}
		case strings.HasSuffix(d.Name(), ".yaml"):
			if err := ValidateFilePermissions(path); err != nil {
				errs = append(errs, err)
			}
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Errorf("walking rules directory: %w", walkErr))
	}
	return errors.Join(errs...)
}
