package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// CleanPath returns the canonical absolute form of a kernel path.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// JoinPath joins a directory path and an entry name into the absolute key
// under which the entry's attributes are cached.
func JoinPath(dir, name string) string {
	return CleanPath(path.Join(CleanPath(dir), name))
}

// IsSyntheticEntry reports whether name is "." or "..".
func IsSyntheticEntry(name string) bool {
	return name == "." || name == ".."
}

// IsEntryName reports whether name can appear as one directory entry: not
// empty, not synthetic, and free of separators and NUL bytes.
func IsEntryName(name string) bool {
	return name != "" && !IsSyntheticEntry(name) && !strings.ContainsAny(name, "/\x00")
}

// ValidateMountPoint checks that mountPoint exists and is a directory.
//
// Example usage:
//
//	if err := ValidateMountPoint("/mnt/routefs"); err != nil {
//		return fmt.Errorf("invalid mount point: %w", err)
//	}
func ValidateMountPoint(mountPoint string) error {
	if mountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(filepath.Clean(mountPoint))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", mountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", mountPoint)
	}

	return nil
}
