// Package snapname names and parses the scratch file tdbgo creates
// alongside the real database for Repack (a full rewrite of every live
// record into a fresh region).
//
// Filename format: <dbname>.tdbgo-tmp.<pid>.<unixnano>
package snapname

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const suffix = ".tdbgo-tmp"

// Generate returns a scratch-file path alongside dbPath, unique to this
// process and this instant: <dbPath>.tdbgo-tmp.<pid>.<unixnano>.
func Generate(dbPath string, now int64) string {
	return fmt.Sprintf("%s%s.%d.%d", dbPath, suffix, os.Getpid(), now)
}

// IsScratchFile reports whether name looks like a path Generate produced
// for dbPath, so cleanup code can recognize and remove stale scratch files
// left behind by a crash during Repack.
func IsScratchFile(dbPath, name string) bool {
	prefix := dbPath + suffix + "."
	return strings.HasPrefix(name, prefix)
}

// ParsePID extracts the owning process ID from a scratch-file path
// produced by Generate, for stale-file diagnostics.
func ParsePID(dbPath, name string) (int, error) {
	prefix := dbPath + suffix + "."
	if !strings.HasPrefix(name, prefix) {
		return 0, fmt.Errorf("snapname: %q is not a scratch file for %q", name, dbPath)
	}
	rest := strings.TrimPrefix(name, prefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("snapname: malformed scratch file name %q", name)
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("snapname: invalid pid in %q: %w", name, err)
	}
	return pid, nil
}

// Glob returns every scratch file currently present alongside dbPath,
// across all processes, for startup cleanup of files orphaned by a crash
// mid-Repack.
func Glob(dbPath string) ([]string, error) {
	pattern := dbPath + suffix + ".*"
	return filepath.Glob(pattern)
}
