// Package filesys provides the small set of file-system utilities tdbgo
// needs outside the database file itself: creating the directory a new
// database lives in, probing for an existing file before create-exclusive
// open, and plain whole-file read/write helpers. No other package in this
// module imports it.
//
// A single-file embedded store has no tree-copy or recursive-search use
// case, so this package stays deliberately small; see DESIGN.md.
package filesys

import (
	"errors"
	"os"
)

var (
	// ErrIsNotDir is returned when a path that was expected to be a
	// directory turns out to be a regular file.
	ErrIsNotDir = errors.New("path isn't a directory")
)

// CreateDir creates a directory at the specified path with the given
// permissions.
//
// If the directory already exists:
//   - If 'force' is true, it proceeds without error.
//   - If 'force' is false, it returns an error.
//
// It also returns an error if the existing path is a file (not a directory).
func CreateDir(dirPath string, permission os.FileMode, force bool) error {
	stat, err := os.Stat(dirPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if !force && err == nil {
		return errors.New("filesys: " + dirPath + " already exists")
	}
	if stat != nil && !stat.IsDir() {
		return ErrIsNotDir
	}
	if err := os.MkdirAll(dirPath, permission); err != nil {
		return err
	}
	return os.Chmod(dirPath, permission)
}

// Exists checks if a file or directory at the given path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadFile reads the entire content of the file at filePath into a byte slice.
func ReadFile(filePath string) ([]byte, error) {
	return os.ReadFile(filePath)
}

// WriteFile writes contents to the file at filePath with the given
// permission, creating it if necessary and truncating it otherwise.
func WriteFile(filePath string, permission os.FileMode, contents []byte) error {
	return os.WriteFile(filePath, contents, permission)
}

// DeleteFile deletes the file at the specified filePath.
func DeleteFile(filePath string) error {
	return os.Remove(filePath)
}
